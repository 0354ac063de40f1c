// Package docs swag 生成的接口文档，修改注释后执行 swag init 重新生成
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
        "/api/health": {
            "get": {
                "description": "检查数据库和 Redis 状态",
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/api/quizzes/{quizId}/attempts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "已有进行中的作答时返回该作答",
                "produces": ["application/json"],
                "tags": ["测验作答"],
                "summary": "开始作答",
                "parameters": [
                    {"type": "integer", "description": "测验ID", "name": "quizId", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/api/quizzes/{quizId}/submit": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["测验作答"],
                "summary": "提交作答",
                "parameters": [
                    {"type": "integer", "description": "测验ID", "name": "quizId", "in": "path", "required": true},
                    {"description": "答案列表", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.SubmitAttemptReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/api/teacher/test-results/calculate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "服务不可用时返回状态为 ERROR 的成绩",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["教师-成绩"],
                "summary": "计算作答成绩",
                "parameters": [
                    {"description": "计算参数", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.CalculateResultRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/api/admin/test-results/process-timeouts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["管理员"],
                "summary": "手动执行超时处理",
                "parameters": [
                    {"type": "integer", "description": "超时分钟数，默认使用配置", "name": "minutes", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        }
    },
    "definitions": {
        "service.AnswerRequest": {
            "type": "object",
            "required": ["questionId"],
            "properties": {
                "answerText": {"type": "string"},
                "questionId": {"type": "integer"},
                "selectedOptionIds": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "service.SubmitAttemptReq": {
            "type": "object",
            "properties": {
                "answers": {"type": "array", "items": {"$ref": "#/definitions/service.AnswerRequest"}}
            }
        },
        "service.CalculateResultRequest": {
            "type": "object",
            "required": ["quizAttemptId"],
            "properties": {
                "forceRecalculation": {"type": "boolean"},
                "passingScore": {"type": "number", "maximum": 100, "minimum": 0},
                "quizAttemptId": {"type": "integer"}
            }
        },
        "util.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "requestId": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "测验评测服务 API",
	Description:      "测验作答、评分与成绩计算服务。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
