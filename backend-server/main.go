package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
)

// Response はゲートウェイ越しに届いたリクエストの内容を返すボディ
type Response struct {
	Message     string              `json:"message"`
	Headers     map[string][]string `json:"headers"`
	Path        string              `json:"path"`
	Method      string              `json:"method"`
	ServiceName string              `json:"service_name"`
	UserID      string              `json:"user_id,omitempty"`
	IsAdmin     string              `json:"is_admin,omitempty"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// mainHandler はオーソライザーのコンテキストをゲートウェイが
// ヘッダーに変換して転送してくる前提で、その値をエコーする
func mainHandler(w http.ResponseWriter, r *http.Request) {
	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "unknown"
	}

	resp := Response{
		Message:     fmt.Sprintf("Hello from %s service!", serviceName),
		Headers:     r.Header,
		Path:        r.URL.Path,
		Method:      r.Method,
		ServiceName: serviceName,
		UserID:      r.Header.Get("X-User-Id"),
		IsAdmin:     r.Header.Get("X-Is-Admin"),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/", mainHandler)

	log.Printf("Starting server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
