package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/router"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/service"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store/storetest"
)

type stubBackend struct {
	status string
}

func (s *stubBackend) Create(ctx context.Context, spec backend.CreateSpec) (int, error) {
	return 30000, nil
}
func (s *stubBackend) Stop(ctx context.Context, name string) error         { return nil }
func (s *stubBackend) Remove(ctx context.Context, name string) error       { return nil }
func (s *stubBackend) RemoveVolume(ctx context.Context, name string) error { return nil }
func (s *stubBackend) Status(ctx context.Context, name string) (string, error) {
	return s.status, nil
}

type stubProvisioner struct {
	provisionFn func(ctx context.Context, event service.PaymentEvent) (*model.Workspace, error)
	events      []service.PaymentEvent
}

func (s *stubProvisioner) Provision(ctx context.Context, event service.PaymentEvent) (*model.Workspace, error) {
	s.events = append(s.events, event)
	if s.provisionFn != nil {
		return s.provisionFn(ctx, event)
	}
	return &model.Workspace{ID: 1, Subdomain: "u-3d83d4", Status: model.StatusActive}, nil
}

var _ = Describe("WorkspaceHandler", func() {
	var (
		engine      *gin.Engine
		mem         *storetest.Memory
		cb          *stubBackend
		provisioner *stubProvisioner
		nextID      int64
	)

	seed := func(sub string, status model.Status) model.Workspace {
		nextID++
		ws := model.Workspace{
			ID:            nextID,
			Email:         "buyer@example.com",
			Plan:          model.PlanOneDay,
			Subdomain:     sub,
			FQDN:          sub + ".xcommand.cloud",
			ContainerName: "n8n_" + sub,
			VolumeName:    "n8n_" + sub + "_data",
			Status:        status,
			ExpiresAt:     time.Now().UTC().Add(12 * time.Hour),
			CreatedAt:     time.Now().UTC(),
		}
		mem.SeedWorkspace(ws)
		return ws
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		mem = storetest.NewMemory()
		cb = &stubBackend{status: "running"}
		provisioner = &stubProvisioner{}

		h := handler.NewWorkspaceHandler(mem, cb, provisioner)
		engine = gin.New()
		engine.GET("/health", h.Health)
		router.WorkspaceRouter(engine.Group("/workspaces"), h)
		router.ProvisionRouter(engine.Group("/provision"), h)
	})

	It("serves the ready-page read path by subdomain", func() {
		ws := seed("u-e57641", model.StatusActive)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/workspaces/u-e57641", nil)
		engine.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var body struct {
			Workspace struct {
				FQDN      string    `json:"fqdn"`
				Status    string    `json:"status"`
				ExpiresAt time.Time `json:"expires_at"`
			} `json:"workspace"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Workspace.FQDN).To(Equal(ws.FQDN))
		Expect(body.Workspace.Status).To(Equal("active"))
		Expect(body.Workspace.ExpiresAt).To(BeTemporally("~", ws.ExpiresAt, time.Second))
	})

	It("returns 404 for an unknown subdomain", func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/workspaces/u-000000", nil)
		engine.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("reports backend resource names and container state on inspect", func() {
		seed("u-e57641", model.StatusActive)
		cb.status = "running"

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/workspaces/u-e57641/inspect", nil)
		engine.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var body map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body["container_name"]).To(Equal("n8n_u-e57641"))
		Expect(body["volume_name"]).To(Equal("n8n_u-e57641_data"))
		Expect(body["row_status"]).To(Equal("active"))
		Expect(body["container_status"]).To(Equal("running"))
	})

	It("lists workspaces by email, excluding deleted ones", func() {
		seed("u-aaaaaa", model.StatusActive)
		seed("u-bbbbbb", model.StatusDeleted)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/workspaces/all-by-email/buyer@example.com", nil)
		engine.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var body struct {
			Workspaces []struct {
				Subdomain string `json:"subdomain"`
			} `json:"workspaces"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Workspaces).To(HaveLen(1))
		Expect(body.Workspaces[0].Subdomain).To(Equal("u-aaaaaa"))
	})

	It("provisions through the simulate path with a generated session id", func() {
		payload, _ := json.Marshal(map[string]string{
			"email": "buyer@example.com",
			"plan":  "1d",
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/provision/simulate", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(provisioner.events).To(HaveLen(1))
		Expect(provisioner.events[0].SessionID).To(HavePrefix("sim_"))
		Expect(provisioner.events[0].Plan).To(Equal(model.PlanOneDay))
	})

	It("passes the lease override through for the test plan", func() {
		payload, _ := json.Marshal(map[string]string{
			"email": "op@example.com",
			"plan":  "test",
			"lease": "10m30s",
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/provision/simulate", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(provisioner.events[0].LeaseOverride).To(Equal(10*time.Minute + 30*time.Second))
	})
})
