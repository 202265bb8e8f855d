package emailsvc

import (
	"bytes"
	"encoding/json"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"text/template"

	"github.com/sendgrid/rest"

	"github.com/trezcool/classroom/core"
)

var testConf = &core.Config{
	AppName:          "Classroom",
	DefaultFromEmail: mail.Address{Name: "Classroom", Address: "noreply@classroom.test"},
	SendgridApiKey:   "sg-key",
}

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Address: "alice@x.com"}},
		Subject:      "Welcome!",
		Template:     template.Must(template.New("t").Parse("Hello {{.}}")),
		TemplateData: "Alice",
	}
}

func TestConsoleService(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConsoleService(testConf, &buf, core.NopLogger{})
	svc.SendMessages(newMessage(), &core.EmailMessage{Subject: "no recipients", BodyStr: "x"})
	svc.Wait()

	sent := svc.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("SentMessages() = %d messages, want 1", len(sent))
	}
	if sent[0].TextContent != "Hello Alice" {
		t.Errorf("TextContent = %q, want %q", sent[0].TextContent, "Hello Alice")
	}
	out := buf.String()
	for _, want := range []string{"Subject: [Classroom] Welcome!", "To: <alice@x.com>", "Hello Alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(testConf)
	svc.SendMessages(newMessage())
	if got := len(svc.SentMessages()); got != 1 {
		t.Errorf("SentMessages() = %d messages, want 1", got)
	}
}

func TestSendgridService(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []rest.Request
	)
	orig := sendRequest
	defer func() { sendRequest = orig }()
	sendRequest = func(req rest.Request) (*rest.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		reqs = append(reqs, req)
		return &rest.Response{StatusCode: 202}, nil
	}

	svc := NewSendgridService(testConf, core.NopLogger{})
	svc.SendMessages(newMessage())
	svc.Wait()

	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	req := reqs[0]
	if req.BaseURL != host+endpoint {
		t.Errorf("BaseURL = %s, want %s", req.BaseURL, host+endpoint)
	}
	if got := req.Headers["Authorization"]; got != "Bearer sg-key" {
		t.Errorf("Authorization = %q", got)
	}

	var body struct {
		Personalizations []struct {
			Subject string `json:"subject"`
		} `json:"personalizations"`
		Content []struct {
			Value string `json:"value"`
		} `json:"content"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	if len(body.Personalizations) != 1 || body.Personalizations[0].Subject != "[Classroom] Welcome!" {
		t.Errorf("personalizations = %+v", body.Personalizations)
	}
	if len(body.Content) != 1 || body.Content[0].Value != "Hello Alice" {
		t.Errorf("content = %+v", body.Content)
	}
}
