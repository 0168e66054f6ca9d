package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/order"
	prod "github.com/MikeMC777/storefront/internal/product"
)

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func listProducts(c *gin.Context, repo prod.Repository, q string) {
	limit, offset := pagination(c)
	items, err := repo.List(c.Request.Context(), prod.Query{Q: q, Limit: limit, Offset: offset})
	if err != nil {
		log.Printf("[product-service] list: %v", err)
		c.JSON(http.StatusInternalServerError, prod.HTTPError{Error: "internal error"})
		return
	}
	if items == nil {
		items = []prod.Product{}
	}
	c.JSON(http.StatusOK, prod.ListResponse{Q: q, Limit: limit, Offset: offset, Items: items})
}

// listOnlyHandler godoc
// @Summary  List products
// @Tags     products
// @Produce  json
// @Param    limit   query     int  false  "page size"
// @Param    offset  query     int  false  "offset"
// @Success  200     {object}  product.ListResponse
// @Router   /products [get]
func listOnlyHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) { listProducts(c, repo, "") }
}

// searchHandler godoc
// @Summary  Search products by name or description
// @Tags     products
// @Produce  json
// @Param    q       query     string  true   "at least 2 characters"
// @Param    limit   query     int     false  "page size"
// @Param    offset  query     int     false  "offset"
// @Success  200     {object}  product.ListResponse
// @Failure  400     {object}  product.HTTPError
// @Router   /products/search [get]
func searchHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		if len([]rune(q)) < 2 {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "q must have at least 2 characters"})
			return
		}
		listProducts(c, repo, q)
	}
}

// getProductHandler godoc
// @Summary  Get a product
// @Tags     products
// @Produce  json
// @Param    id   path      string  true  "product id"
// @Success  200  {object}  product.Product
// @Failure  404  {object}  product.HTTPError
// @Router   /products/{id} [get]
func getProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, prod.ErrNotFound) {
			c.JSON(http.StatusNotFound, prod.HTTPError{Error: "not found"})
			return
		}
		if err != nil {
			log.Printf("[product-service] get %s: %v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, prod.HTTPError{Error: "internal error"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Stock       int    `json:"stock"`
}

// createProductHandler godoc
// @Summary   Add a product to the catalog
// @Tags      admin
// @Accept    json
// @Produce   json
// @Security  BearerAuth
// @Success   201  {object}  product.Product
// @Failure   400  {object}  product.HTTPError
// @Router    /products [post]
func createProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
		if strings.TrimSpace(req.Name) == "" || err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "name and a non-negative price are required"})
			return
		}
		if !order.WholeCents(price) {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "price must be in whole cents"})
			return
		}
		if req.Stock < 0 {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "stock must be non-negative"})
			return
		}
		p := &prod.Product{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			Price:       price,
			Image:       strings.TrimSpace(req.Image),
			Stock:       req.Stock,
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			log.Printf("[product-service] create: %v", err)
			c.JSON(http.StatusInternalServerError, prod.HTTPError{Error: "internal error"})
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}
