package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// push-sim sends test batches at the prospect-service push endpoint. Modes:
// standard (canonical envelope batch), legacy (old campus record batch),
// handshake (subscription validation).
func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "prospect-service base url")
		mode    = flag.String("mode", getenv("PUSH_MODE", "standard"), "standard | legacy | handshake")
		student = flag.String("student-id", getenv("STUDENT_ID", ""), "student id (random when empty)")
		key     = flag.String("key", getenv("PUSH_VALIDATION_KEY", ""), "shared secret for X-Validation-Key")
	)
	flag.Parse()

	id := strings.TrimSpace(*student)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	payload, err := buildBatch(*mode, id, now)
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/events", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(*key) != "" {
		req.Header.Set("X-Validation-Key", *key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildBatch(mode, studentID string, now time.Time) ([]byte, error) {
	switch mode {
	case "standard":
		return json.Marshal([]map[string]any{{
			"eventId":       uuid.NewString(),
			"eventType":     "StudentCreated",
			"schemaVersion": "v1",
			"occurredAt":    now.Format(time.RFC3339),
			"producer":      "push-sim",
			"correlationId": uuid.NewString(),
			"subject":       "student/" + studentID,
			"data": map[string]any{
				"studentId": studentID,
				"firstName": "Test",
				"lastName":  "Student",
				"email":     fmt.Sprintf("test-%s@example.com", studentID[:8]),
				"status":    "applied",
			},
		}})
	case "legacy":
		return json.Marshal([]map[string]any{{
			"messageId":     uuid.NewString(),
			"messageType":   "STUDENT_CREATED",
			"occurredOn":    now.Format("2006-01-02 15:04:05"),
			"source":        "campus-legacy",
			"correlationId": uuid.NewString(),
			"entity":        "student",
			"entityId":      studentID,
			"body": map[string]any{
				"studentId": studentID,
				"firstName": "Legacy",
				"lastName":  "Student",
				"email":     fmt.Sprintf("legacy-%s@example.com", studentID[:8]),
				"status":    "applied",
			},
		}})
	case "handshake":
		return json.Marshal([]map[string]any{{
			"eventId":       uuid.NewString(),
			"eventType":     "subscription.validation",
			"schemaVersion": "v1",
			"occurredAt":    now.Format(time.RFC3339),
			"producer":      "push-sim",
			"correlationId": uuid.NewString(),
			"subject":       "subscription",
			"data": map[string]any{
				"validationCode": uuid.NewString(),
			},
		}})
	default:
		return nil, fmt.Errorf("unsupported mode: %s", mode)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
