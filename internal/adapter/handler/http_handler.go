package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type HTTPHandler struct {
	orderService       *service.OrderService
	productService     *service.ProductService
	maintenanceService *service.MaintenanceService
	log                *logrus.Entry
}

type updateOrderHTTPRequest struct {
	OrderID       string               `json:"orderId"`
	Status        domain.OrderStatus   `json:"status,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus,omitempty"`
}

type bulkUpdateHTTPRequest struct {
	OrderIDs []string           `json:"orderIds"`
	Status   domain.OrderStatus `json:"status"`
}

type validateStockHTTPRequest struct {
	Items []domain.LineItem `json:"items"`
}

type restockHTTPRequest struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

type maintenanceHTTPRequest struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

type errorHTTPResponse struct {
	Success     bool               `json:"success"`
	Error       string             `json:"error"`
	FieldErrors map[string]string  `json:"fieldErrors,omitempty"`
	Shortfalls  []domain.ItemCheck `json:"shortfalls,omitempty"`
	OrderID     string             `json:"orderId,omitempty"`
}

func NewHTTPHandler(orders *service.OrderService, products *service.ProductService, maintenance *service.MaintenanceService, log *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		orderService:       orders,
		productService:     products,
		maintenanceService: maintenance,
		log:                log.WithField("component", "http"),
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Put("/", h.updateOrder)
		r.Patch("/", h.bulkUpdateOrders)
		r.Get("/{id}", h.getOrder)
		r.Delete("/{id}", h.deleteOrder)
	})

	r.Post("/stock/validate", h.validateStock)

	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/restock", h.restock)

	r.Get("/maintenance", h.getMaintenance)
	r.Post("/maintenance", h.setMaintenance)
	r.Put("/maintenance", h.setMaintenance)
	r.Delete("/maintenance", h.clearMaintenance)

	return r
}

func (h *HTTPHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	order, err := h.orderService.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "order": order})
}

func (h *HTTPHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	search := q.Get("search")
	status := domain.OrderStatus(q.Get("status"))

	var (
		orders []domain.Order
		err    error
	)
	if search == "" && status == "" {
		orders, err = h.orderService.GetOrders(r.Context(), limit, offset)
	} else {
		orders, err = h.orderService.SearchOrders(r.Context(), domain.OrderFilter{
			Search: search,
			Status: status,
			Limit:  limit,
			Offset: offset,
		})
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (h *HTTPHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	verr := domain.NewValidationError()
	if req.OrderID == "" {
		verr.Add("orderId", "order id is required")
	}
	if req.Status == "" && req.PaymentStatus == "" {
		verr.Add("status", "status or paymentStatus is required")
	}
	if err := verr.OrNil(); err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.Status != "" {
		if err := h.orderService.UpdateOrderStatus(r.Context(), req.OrderID, req.Status); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.PaymentStatus != "" {
		if err := h.orderService.UpdatePaymentStatus(r.Context(), req.OrderID, req.PaymentStatus); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPHandler) bulkUpdateOrders(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		verr := domain.NewValidationError()
		verr.Add("orderIds", "at least one order id is required")
		h.writeError(w, r, verr)
		return
	}

	updated, err := h.orderService.BulkUpdateOrderStatus(r.Context(), req.OrderIDs, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

func (h *HTTPHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPHandler) validateStock(w http.ResponseWriter, r *http.Request) {
	var req validateStockHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.orderService.ValidateStock(r.Context(), req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

func (h *HTTPHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	stock, err := h.productService.Restock(r.Context(), chi.URLParam(r, "id"), req.Size, req.Color, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stock": stock})
}

func (h *HTTPHandler) getMaintenance(w http.ResponseWriter, r *http.Request) {
	status, err := h.maintenanceService.Get(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "maintenance": status})
}

func (h *HTTPHandler) setMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.saveMaintenance(w, r, req.Enabled, req.Message)
}

func (h *HTTPHandler) clearMaintenance(w http.ResponseWriter, r *http.Request) {
	h.saveMaintenance(w, r, false, "")
}

// saveMaintenance answers as soon as the cache holds the new flag; the
// store write finishes on the background writer.
func (h *HTTPHandler) saveMaintenance(w http.ResponseWriter, r *http.Request, enabled bool, message string) {
	status, _, err := h.maintenanceService.Set(r.Context(), enabled, message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "maintenance": status})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorHTTPResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorHTTPResponse{Success: false, Error: publicMessage(err)}

	var (
		verr *domain.ValidationError
		ise  *domain.InsufficientStockError
		pf   *domain.PartialFailureError
	)
	if errors.As(err, &verr) {
		resp.FieldErrors = verr.Fields
	}
	if errors.As(err, &ise) {
		resp.Shortfalls = ise.Shortfalls
	}
	if errors.As(err, &pf) {
		resp.OrderID = pf.OrderID
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
	}
	writeJSON(w, status, resp)
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
