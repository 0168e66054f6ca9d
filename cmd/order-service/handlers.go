package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/storefront/internal/httpx"
	"github.com/MikeMC777/storefront/internal/order"
)

func requester(c *gin.Context) order.Requester {
	return order.Requester{UserID: httpx.UserID(c), Admin: httpx.IsAdmin(c)}
}

// writeError maps service errors to status codes. Anything unexpected is
// logged and reported as a 500 without internals.
func writeError(c *gin.Context, err error) {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, order.ErrProductNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to access this order"})
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrOutOfStock),
		errors.Is(err, order.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("[order-service] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// createOrderHandler godoc
// @Summary      Place an order
// @Description  Creates an order for the authenticated user. A repeated Idempotency-Key returns the existing order with 200.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header  string                    false  "client generated key"
// @Param        order            body    order.CreateOrderRequest  true   "order"
// @Success      201  {object}  order.OrderResponse
// @Success      200  {object}  order.OrderResponse
// @Failure      400  {object}  product.HTTPError
// @Failure      409  {object}  product.HTTPError
// @Router       /orders [post]
func createOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
			return
		}
		in, err := req.Input(httpx.UserID(c), c.GetHeader("Idempotency-Key"))
		if err != nil {
			writeError(c, err)
			return
		}
		o, replayed, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		code := http.StatusCreated
		if replayed {
			code = http.StatusOK
		}
		c.JSON(code, order.ToResponse(o))
	}
}

// getOrderHandler godoc
// @Summary   Get an order
// @Tags      orders
// @Produce   json
// @Security  BearerAuth
// @Param     id   path      string  true  "order id"
// @Success   200  {object}  order.OrderResponse
// @Failure   403  {object}  product.HTTPError
// @Failure   404  {object}  product.HTTPError
// @Router    /orders/{id} [get]
func getOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetByID(c.Request.Context(), c.Param("id"), requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToResponse(o))
	}
}

// myOrdersHandler godoc
// @Summary   List the caller's orders
// @Tags      orders
// @Produce   json
// @Security  BearerAuth
// @Success   200  {array}  order.OrderResponse
// @Router    /orders/myorders [get]
func myOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := requester(c)
		list, err := svc.ListForUser(c.Request.Context(), r, r.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToResponses(list))
	}
}

// listOrdersHandler godoc
// @Summary   List every order
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Success   200  {array}   order.OrderResponse
// @Failure   403  {object}  product.HTTPError
// @Router    /orders [get]
func listOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListAll(c.Request.Context(), requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToResponses(list))
	}
}

// trackingHandler godoc
// @Summary   Delivery stage of an order
// @Tags      orders
// @Produce   json
// @Security  BearerAuth
// @Param     id   path      string  true  "order id"
// @Success   200  {object}  order.Tracking
// @Failure   404  {object}  product.HTTPError
// @Router    /orders/{id}/tracking [get]
func trackingHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Tracking(c.Request.Context(), c.Param("id"), requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// payOrderHandler godoc
// @Summary      Mark an order paid
// @Description  Records the provider result. Repeating the call with the same transaction id is a no-op.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string            true  "order id"
// @Param        payment  body  order.PayRequest  true  "payment result"
// @Success      200  {object}  order.OrderResponse
// @Failure      400  {object}  product.HTTPError
// @Failure      409  {object}  product.HTTPError
// @Router       /orders/{id}/pay [put]
func payOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.PayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
			return
		}
		in, err := req.Input(time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		o, err := svc.MarkPaid(c.Request.Context(), c.Param("id"), requester(c), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToResponse(o))
	}
}

// deliverOrderHandler godoc
// @Summary   Mark an order delivered
// @Tags      admin
// @Produce   json
// @Security  BearerAuth
// @Param     id   path      string  true  "order id"
// @Success   200  {object}  order.OrderResponse
// @Failure   409  {object}  product.HTTPError
// @Router    /orders/{id}/deliver [put]
func deliverOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.MarkDelivered(c.Request.Context(), c.Param("id"), requester(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToResponse(o))
	}
}
