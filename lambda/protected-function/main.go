package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// Response は保護されたエンドポイントが返すボディ
type Response struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Path    string `json:"path"`
	Method  string `json:"method"`
	UserID  string `json:"userId,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// handler はオーソライザーを通過したリクエストを受け、
// ゲートウェイが引き渡した認可コンテキストをそのまま返す
func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log.Printf("[Protected] %s %s", event.HTTPMethod, event.Path)

	body := Response{
		Message: "Hello from protected-function!",
		Status:  "success",
		Path:    event.Path,
		Method:  event.HTTPMethod,
	}

	// オーソライザーが設定したコンテキストを読み取る
	if auth := event.RequestContext.Authorizer; auth != nil {
		if v, ok := auth["userId"].(string); ok {
			body.UserID = v
		}
		if v, ok := auth["isAdmin"].(bool); ok {
			body.IsAdmin = v
		}
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: 500}, err
	}

	return events.APIGatewayProxyResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(buf),
	}, nil
}

func main() {
	lambda.Start(handler)
}
