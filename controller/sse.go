package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// sseSink delivers relay output as server-sent events. A write error
// means the client hung up; the relay stops forwarding on it.
type sseSink struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Message(fragment string) error {
	return s.send(gin.H{"type": "message", "content": fragment})
}

func (s *sseSink) Error(description string) error {
	return s.send(gin.H{"type": "error", "message": description})
}
