package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Billing API",
        "description": "Installment ledger, payment allocation and approval workflows",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Billing", "description": "Installment terms, payments and reminders"},
        {"name": "Workflows", "description": "Workflow templates and instances"},
        {"name": "Approvals", "description": "Approval gate decisions"}
    ],
    "paths": {
        "/assessments/{id}/ledger": {
            "get": {
                "tags": ["Billing"],
                "summary": "Get the installment ledger of an assessment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Assessment not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments/{id}/statement.csv": {
            "get": {
                "tags": ["Billing"],
                "summary": "Download the installment ledger as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "CSV statement", "schema": {"type": "string"}},
                    "404": {"description": "Assessment not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/health": {
            "get": {
                "summary": "Liveness check",
                "security": [],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/assessments/{id}/terms": {
            "post": {
                "tags": ["Billing"],
                "summary": "Assign installment terms to an assessment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTermsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Terms already assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments/{id}/payments": {
            "post": {
                "tags": ["Billing"],
                "summary": "Record a payment against an assessment",
                "description": "Allocates the amount across outstanding terms in term order. Payments at or above the approval threshold are parked for approval.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Payment recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Payment pending approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid amount or term", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification, retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No outstanding balance", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/{id}": {
            "get": {
                "tags": ["Billing"],
                "summary": "Get a payment with its approval outcome",
                "description": "effective_status is approved or rejected once the approval workflow of a routed payment closes",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/reminders": {
            "get": {
                "tags": ["Billing"],
                "summary": "List a student's payment reminders",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "types", "in": "query", "type": "string", "description": "Comma separated: overdue, approaching_due, payment_due, partial_payment, payment_received"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Register a workflow template",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateWorkflowRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid workflow", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/{id}/instances": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Start a workflow instance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartWorkflowRequest"}}
                ],
                "responses": {
                    "201": {"description": "Started", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Workflow not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-instances/{id}": {
            "get": {
                "tags": ["Workflows"],
                "summary": "Get a workflow instance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-instances/{id}/approvals": {
            "get": {
                "tags": ["Workflows"],
                "summary": "List the approvals of a workflow instance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-instances/{id}/advance": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Advance a workflow instance to its next step",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Advanced or completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Approval pending or workflow closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-approvals/{id}/approve": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Approve a pending approval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ApprovalDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the designated approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow-approvals/{id}/reject": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Reject a pending approval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovalDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Comments required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the designated approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TermInput": {
            "type": "object",
            "required": ["term_name", "term_order", "amount", "due_date"],
            "properties": {
                "term_name": {"type": "string"},
                "term_order": {"type": "integer"},
                "amount": {"type": "string", "example": "5000.00"},
                "percentage": {"type": "string", "example": "25.00"},
                "due_date": {"type": "string", "format": "date-time"}
            }
        },
        "CreateTermsRequest": {
            "type": "object",
            "properties": {
                "terms": {"type": "array", "items": {"$ref": "#/definitions/TermInput"}}
            }
        },
        "RecordPaymentRequest": {
            "type": "object",
            "required": ["amount", "payment_method"],
            "properties": {
                "amount": {"type": "string", "example": "1500.50"},
                "target_term_id": {"type": "integer"},
                "reference": {"type": "string"},
                "payment_method": {"type": "string", "enum": ["cash", "bank_transfer", "check", "gcash", "card"]},
                "paid_at": {"type": "string", "format": "date-time"}
            }
        },
        "WorkflowStepInput": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "requires_approval": {"type": "boolean"},
                "approvers": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "CreateWorkflowRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "type": {"type": "string", "enum": ["student", "accounting", "general"]},
                "steps": {"type": "array", "items": {"$ref": "#/definitions/WorkflowStepInput"}}
            }
        },
        "StartWorkflowRequest": {
            "type": "object",
            "properties": {
                "subject_type": {"type": "string", "enum": ["payment", "assessment"]},
                "subject_id": {"type": "integer"}
            }
        },
        "ApprovalDecisionRequest": {
            "type": "object",
            "properties": {
                "comments": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
