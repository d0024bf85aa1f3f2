package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Health Check",
                "description": "Check if server is running",
                "responses": {
                    "200": {
                        "description": "Server is healthy"
                    }
                }
            }
        },
        "/health/detailed": {
            "get": {
                "tags": ["Health"],
                "summary": "Detailed Health Check",
                "description": "Check the document store",
                "responses": {
                    "200": {
                        "description": "Store reachable"
                    },
                    "503": {
                        "description": "Store unavailable"
                    }
                }
            }
        },
        "/api/api.php": {
            "post": {
                "tags": ["Catalog"],
                "summary": "Catalog API",
                "description": "Single endpoint; the action query parameter selects the operation. Admin actions (add_item, update_item, delete_item, update_config, reset_item_stats) need a bearer token when the server requires one.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "in": "query",
                        "name": "action",
                        "required": true,
                        "type": "string",
                        "enum": ["get_all", "add_item", "update_item", "delete_item", "increment_download", "increment_visitor", "login", "update_config", "rate_item", "reset_item_stats"]
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "description": "Action arguments",
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Action result, or {\"error\":\"Invalid Action\"}"
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/FailureResponse"
                        }
                    },
                    "401": {
                        "description": "Admin token missing or invalid"
                    },
                    "404": {
                        "description": "Item not found (rate_item)",
                        "schema": {
                            "$ref": "#/definitions/FailureResponse"
                        }
                    },
                    "500": {
                        "description": "Internal error",
                        "schema": {
                            "$ref": "#/definitions/ErrorResponse"
                        }
                    }
                }
            }
        },
        "/material/{name}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Raw document",
                "description": "Current items, stats or config document as pretty JSON",
                "produces": ["application/json"],
                "parameters": [
                    {
                        "in": "path",
                        "name": "name",
                        "required": true,
                        "type": "string",
                        "enum": ["items.txt", "stats.txt", "config.txt"]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Document body"
                    },
                    "404": {
                        "description": "Unknown document"
                    }
                }
            }
        }
    },
    "definitions": {
        "FailureResponse": {
            "type": "object",
            "properties": {
                "success": {
                    "type": "boolean"
                },
                "error": {
                    "type": "string"
                }
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and the token returned by login"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Catalog API",
	Description:      "File download catalog",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
