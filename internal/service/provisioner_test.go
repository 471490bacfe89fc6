package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/service"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store/storetest"
)

type fakeBackend struct {
	mu             sync.Mutex
	createErr      error
	created        []backend.CreateSpec
	stopped        []string
	removed        []string
	removedVolumes []string
}

func (f *fakeBackend) Create(ctx context.Context, spec backend.CreateSpec) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, spec)
	return 30000 + len(f.created), nil
}

func (f *fakeBackend) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeBackend) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeBackend) RemoveVolume(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedVolumes = append(f.removedVolumes, name)
	return nil
}

func (f *fakeBackend) Status(ctx context.Context, name string) (string, error) {
	return "running", nil
}

func newProvisioner(mem *storetest.Memory, cb backend.ContainerBackend) *service.Provisioner {
	allocator := service.NewSubdomainAllocator(mem.Workspaces())
	return service.NewProvisioner(mem, mem, allocator, cb, "xcommand.cloud", "xcommand.cloud", "devkey-0123456789abcdef")
}

var _ = Describe("Provisioner", func() {
	var (
		mem *storetest.Memory
		cb  *fakeBackend
		p   *service.Provisioner
		ctx context.Context
	)

	BeforeEach(func() {
		mem = storetest.NewMemory()
		cb = &fakeBackend{}
		p = newProvisioner(mem, cb)
		ctx = context.Background()
	})

	It("provisions a workspace from a confirmed payment", func() {
		ws, err := p.Provision(ctx, service.PaymentEvent{
			SessionID:   "sess_1",
			Email:       "buyer@example.com",
			Plan:        model.PlanOneDay,
			AmountCents: 100,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(ws.Status).To(Equal(model.StatusActive))
		Expect(ws.Subdomain).To(MatchRegexp(`^u-[0-9a-f]{6}$`))
		Expect(ws.ContainerName).To(Equal("n8n_" + ws.Subdomain))
		Expect(ws.VolumeName).To(Equal("n8n_" + ws.Subdomain + "_data"))
		Expect(ws.FQDN).To(HavePrefix("http://xcommand.cloud:"))
		Expect(ws.ExpiresAt).To(BeTemporally("~", time.Now().Add(24*time.Hour), 10*time.Second))

		Expect(cb.created).To(HaveLen(1))
		Expect(cb.created[0].ContainerName).To(Equal(ws.ContainerName))

		payment := mem.Payment("sess_1")
		Expect(payment).NotTo(BeNil())
		Expect(payment.WorkspaceID).To(HaveValue(Equal(ws.ID)))

		stored := mem.Workspace(ws.ID)
		Expect(stored.Status).To(Equal(model.StatusActive))
	})

	It("returns the existing workspace on payment redelivery without a new container", func() {
		first, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_1", Email: "buyer@example.com", Plan: model.PlanOneDay, AmountCents: 100,
		})
		Expect(err).NotTo(HaveOccurred())

		second, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_1", Email: "buyer@example.com", Plan: model.PlanOneDay, AmountCents: 100,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(second.ID).To(Equal(first.ID))
		Expect(second.Subdomain).To(Equal(first.Subdomain))
		Expect(cb.created).To(HaveLen(1))
	})

	It("returns the in-flight workspace when redelivery races a provision", func() {
		// State as committed by the intent transaction: payment attached to a
		// row still in provisioning, backend call not yet finished.
		mem.SeedWorkspace(model.Workspace{
			ID: 7, Email: "buyer@example.com", Plan: model.PlanOneDay,
			Subdomain: "u-abc123", ContainerName: "n8n_u-abc123", VolumeName: "n8n_u-abc123_data",
			Status: model.StatusProvisioning, ExpiresAt: time.Now().Add(24 * time.Hour),
		})
		wsID := int64(7)
		Expect(mem.Payments().Create(ctx, &model.Payment{
			ID: 70, ExternalSessionID: "sess_race", Email: "buyer@example.com",
			Plan: model.PlanOneDay, AmountCents: 100, WorkspaceID: &wsID,
		})).To(Succeed())

		ws, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_race", Email: "buyer@example.com", Plan: model.PlanOneDay, AmountCents: 100,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.ID).To(Equal(wsID))
		Expect(cb.created).To(BeEmpty(), "no second container for the same payment")
	})

	It("marks the row deleted on backend failure and lets a retry provision again", func() {
		cb.createErr = errors.New("daemon unreachable")

		_, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_2", Email: "buyer@example.com", Plan: model.PlanFiveDay, AmountCents: 300,
		})
		Expect(err).To(HaveOccurred())

		payment := mem.Payment("sess_2")
		Expect(payment).NotTo(BeNil(), "payment must survive for reconciliation")
		Expect(payment.WorkspaceID).NotTo(BeNil())
		Expect(mem.Workspace(*payment.WorkspaceID).Status).To(Equal(model.StatusDeleted))

		cb.createErr = nil
		ws, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_2", Email: "buyer@example.com", Plan: model.PlanFiveDay, AmountCents: 300,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.Status).To(Equal(model.StatusActive))
		Expect(mem.Payment("sess_2").WorkspaceID).To(HaveValue(Equal(ws.ID)))
	})

	It("rejects unknown plans", func() {
		_, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_3", Email: "buyer@example.com", Plan: model.Plan("99d"),
		})
		Expect(err).To(MatchError(service.ErrInvalidPlan))
		Expect(cb.created).To(BeEmpty())
	})

	It("requires an explicit lease for the test plan and honors it", func() {
		_, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_4", Email: "op@example.com", Plan: model.PlanTest,
		})
		Expect(err).To(MatchError(service.ErrInvalidPlan))

		ws, err := p.Provision(ctx, service.PaymentEvent{
			SessionID:     "sess_5",
			Email:         "op@example.com",
			Plan:          model.PlanTest,
			LeaseOverride: 10*time.Minute + 30*time.Second,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.ExpiresAt).To(BeTemporally("~", time.Now().Add(10*time.Minute+30*time.Second), 10*time.Second))
	})

	It("cleans up partial backend resources on the fast-fail path", func() {
		cb.createErr = errors.New("image pull failed")

		_, err := p.Provision(ctx, service.PaymentEvent{
			SessionID: "sess_6", Email: "buyer@example.com", Plan: model.PlanOneDay, AmountCents: 100,
		})
		Expect(err).To(HaveOccurred())

		Expect(cb.stopped).To(HaveLen(1))
		Expect(cb.removed).To(HaveLen(1))
		Expect(cb.removedVolumes).To(HaveLen(1))
	})
})
