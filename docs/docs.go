// Package docs holds the order service OpenAPI document and registers it with
// swag so gin-swagger can serve it. Keep it in step with the handler annotations
// in cmd/order-service.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/orders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List every order",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/order.OrderResponse"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates an order for the authenticated user. A repeated Idempotency-Key returns the existing order with 200.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Place an order",
                "parameters": [
                    {"type": "string", "description": "client generated key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "order", "name": "order", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CreateOrderRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/myorders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "List the caller's orders",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/order.OrderResponse"}}}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get an order",
                "parameters": [{"type": "string", "description": "order id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}/deliver": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Mark an order delivered",
                "parameters": [{"type": "string", "description": "order id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}/pay": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Records the provider result. Repeating the call with the same transaction id is a no-op.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Mark an order paid",
                "parameters": [
                    {"type": "string", "description": "order id", "name": "id", "in": "path", "required": true},
                    {"description": "payment result", "name": "payment", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.PayRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}/tracking": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Delivery stage of an order",
                "parameters": [{"type": "string", "description": "order id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.Tracking"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        }
    },
    "definitions": {
        "order.Address": {
            "type": "object",
            "properties": {
                "city": {"type": "string"},
                "country": {"type": "string"},
                "postal_code": {"type": "string"},
                "street": {"type": "string"}
            }
        },
        "order.CreateOrderItem": {
            "type": "object",
            "properties": {
                "image": {"type": "string"},
                "name": {"type": "string", "example": "Wireless Mouse"},
                "product_id": {"type": "string", "example": "4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"},
                "quantity": {"type": "integer", "example": 2},
                "unit_price": {"type": "string", "example": "54.99"}
            }
        },
        "order.CreateOrderRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.CreateOrderItem"}},
                "payment_method": {"type": "string", "example": "CreditCard"},
                "payment_reference": {"type": "string", "example": "CARD_1712345678901"},
                "shipping_address": {"$ref": "#/definitions/order.Address"},
                "total_price": {"type": "string", "example": "109.98"}
            }
        },
        "order.Item": {
            "type": "object",
            "properties": {
                "image": {"type": "string"},
                "name": {"type": "string"},
                "product_id": {"type": "string"},
                "quantity": {"type": "integer"},
                "unit_price": {"type": "string"}
            }
        },
        "order.OrderResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "delivered_at": {"type": "string"},
                "id": {"type": "string"},
                "is_delivered": {"type": "boolean"},
                "is_paid": {"type": "boolean"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.Item"}},
                "paid_at": {"type": "string"},
                "payment_intent": {"$ref": "#/definitions/order.PaymentIntent"},
                "payment_method": {"type": "string"},
                "payment_result": {"$ref": "#/definitions/order.PaymentRecord"},
                "shipping_address": {"$ref": "#/definitions/order.Address"},
                "status": {"type": "string"},
                "total_price": {"type": "string"},
                "updated_at": {"type": "string"},
                "user_id": {"type": "string"}
            }
        },
        "order.PayRequest": {
            "type": "object",
            "properties": {
                "card_last4": {"type": "string", "example": "1111"},
                "email_address": {"type": "string", "example": "buyer@example.com"},
                "id": {"type": "string", "example": "CARD_1712345678901"},
                "payer_id": {"type": "string"},
                "status": {"type": "string", "example": "COMPLETED"},
                "update_time": {"type": "string", "example": "2024-04-05T18:21:18Z"}
            }
        },
        "order.PaymentIntent": {
            "type": "object",
            "properties": {
                "method": {"type": "string"},
                "started_at": {"type": "string"},
                "transaction_id": {"type": "string"}
            }
        },
        "order.PaymentRecord": {
            "type": "object",
            "properties": {
                "card_last4": {"type": "string"},
                "email_address": {"type": "string"},
                "id": {"type": "string"},
                "method": {"type": "string"},
                "payer_id": {"type": "string"},
                "status": {"type": "string"},
                "update_time": {"type": "string"}
            }
        },
        "order.Tracking": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "order_id": {"type": "string"},
                "stage": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "product.HTTPError": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "not found"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Storefront Order Service",
	Description:      "Orders, payment confirmation and delivery tracking.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
