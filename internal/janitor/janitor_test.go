package janitor_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/janitor"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store/storetest"
)

// fakeBackend tracks teardown calls. Stopping or removing a resource that was
// never created (or was already torn down) succeeds, matching the idempotent
// contract of the real backend.
type fakeBackend struct {
	mu             sync.Mutex
	stopErr        error
	removeErr      error
	volumeErr      error
	stopped        []string
	removed        []string
	removedVolumes []string
}

func (f *fakeBackend) Create(ctx context.Context, spec backend.CreateSpec) (int, error) {
	return 30000, nil
}

func (f *fakeBackend) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeBackend) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeBackend) RemoveVolume(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volumeErr != nil {
		return f.volumeErr
	}
	f.removedVolumes = append(f.removedVolumes, name)
	return nil
}

func (f *fakeBackend) Status(ctx context.Context, name string) (string, error) {
	return "running", nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls []int64
}

func (f *fakeNotifier) ExportAndNotify(ctx context.Context, ws *model.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ws.ID)
	return f.err
}

const exportLead = 10 * time.Minute

func activeWorkspace(id int64, expiresIn time.Duration) model.Workspace {
	return model.Workspace{
		ID:            id,
		Email:         "buyer@example.com",
		Plan:          model.PlanOneDay,
		Subdomain:     "u-e57641",
		FQDN:          "u-e57641.xcommand.cloud",
		ContainerName: "n8n_u-e57641",
		VolumeName:    "n8n_u-e57641_data",
		Status:        model.StatusActive,
		ExpiresAt:     time.Now().UTC().Add(expiresIn),
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
}

var _ = Describe("Janitor", func() {
	var (
		mem      *storetest.Memory
		cb       *fakeBackend
		notifier *fakeNotifier
		j        *janitor.Janitor
		ctx      context.Context
	)

	BeforeEach(func() {
		mem = storetest.NewMemory()
		cb = &fakeBackend{}
		notifier = &fakeNotifier{}
		j = janitor.New(mem, cb, notifier, exportLead)
		ctx = context.Background()
	})

	Describe("teardown pass", func() {
		It("tears down an expired active workspace and deletes its row", func() {
			mem.SeedWorkspace(activeWorkspace(1, -time.Minute))

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Expired).To(Equal(1))
			Expect(stats.TornDown).To(Equal(1))

			Expect(cb.stopped).To(Equal([]string{"n8n_u-e57641"}))
			Expect(cb.removed).To(Equal([]string{"n8n_u-e57641"}))
			Expect(cb.removedVolumes).To(Equal([]string{"n8n_u-e57641_data"}))
			Expect(mem.Workspace(1)).To(BeNil())
		})

		It("is a no-op when run twice on the same state", func() {
			mem.SeedWorkspace(activeWorkspace(1, -time.Minute))

			_, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Expired).To(BeZero())
			Expect(stats.TornDown).To(BeZero())
			Expect(cb.stopped).To(HaveLen(1))
		})

		It("leaves untouched workspaces that have not expired", func() {
			mem.SeedWorkspace(activeWorkspace(1, time.Hour))

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Expired).To(BeZero())
			Expect(mem.Workspace(1).Status).To(Equal(model.StatusActive))
		})

		It("keeps the row at stopping when the backend fails and completes on a later sweep", func() {
			mem.SeedWorkspace(activeWorkspace(1, -time.Minute))
			cb.removeErr = errors.New("daemon unreachable")

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TeardownFailed).To(Equal(1))
			Expect(mem.Workspace(1).Status).To(Equal(model.StatusStopping))

			cb.removeErr = nil
			stats, err = j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TornDown).To(Equal(1))
			Expect(mem.Workspace(1)).To(BeNil())
		})

		It("cleans up an expired workspace stuck in provisioning", func() {
			ws := activeWorkspace(1, -time.Minute)
			ws.Status = model.StatusProvisioning
			mem.SeedWorkspace(ws)

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TornDown).To(Equal(1))
			Expect(mem.Workspace(1)).To(BeNil())
		})

		It("does not block the batch on one failing row", func() {
			bad := activeWorkspace(1, -time.Minute)
			mem.SeedWorkspace(bad)
			good := activeWorkspace(2, -time.Minute)
			good.Subdomain = "u-3d83d4"
			good.ContainerName = "n8n_u-3d83d4"
			good.VolumeName = "n8n_u-3d83d4_data"
			mem.SeedWorkspace(good)

			// Fail the stop call only for the first container processed;
			// simplest deterministic fault here is to fail all stops, then
			// assert both rows were attempted and both remain.
			cb.stopErr = errors.New("daemon unreachable")
			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Expired).To(Equal(2))
			Expect(stats.TeardownFailed).To(Equal(2))
			Expect(mem.Workspace(1)).NotTo(BeNil())
			Expect(mem.Workspace(2)).NotTo(BeNil())
		})

		It("skips rows whose advisory lock is held elsewhere", func() {
			mem.SeedWorkspace(activeWorkspace(1, -time.Minute))
			mem.HeldLocks[1] = true

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TornDown).To(BeZero())
			Expect(stats.TeardownFailed).To(BeZero())
			Expect(cb.stopped).To(BeEmpty())
			Expect(mem.Workspace(1)).NotTo(BeNil())
		})
	})

	Describe("export pass", func() {
		It("sends the export notice exactly once inside the lead window", func() {
			mem.SeedWorkspace(activeWorkspace(1, 5*time.Minute))

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExportDue).To(Equal(1))
			Expect(stats.Exported).To(Equal(1))
			Expect(notifier.calls).To(Equal([]int64{1}))
			Expect(mem.Workspace(1).ExportNoticeSent).To(BeTrue())

			stats, err = j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExportDue).To(BeZero())
			Expect(notifier.calls).To(HaveLen(1))
		})

		It("does not notify outside the lead window", func() {
			mem.SeedWorkspace(activeWorkspace(1, exportLead+time.Hour))

			_, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.calls).To(BeEmpty())
		})

		It("retries a failed export on the next sweep", func() {
			mem.SeedWorkspace(activeWorkspace(1, 5*time.Minute))
			notifier.err = errors.New("smtp down")

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExportFailed).To(Equal(1))
			Expect(mem.Workspace(1).ExportNoticeSent).To(BeFalse())

			notifier.err = nil
			stats, err = j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Exported).To(Equal(1))
			Expect(mem.Workspace(1).ExportNoticeSent).To(BeTrue())
		})

		It("never lets a failing export delay teardown", func() {
			mem.SeedWorkspace(activeWorkspace(1, -time.Minute))
			notifier.err = errors.New("smtp down")

			stats, err := j.SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExportDue).To(BeZero(), "expired rows are not export-due")
			Expect(stats.TornDown).To(Equal(1))
			Expect(mem.Workspace(1)).To(BeNil())
		})
	})
})
