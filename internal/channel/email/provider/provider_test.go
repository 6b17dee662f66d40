package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func TestBuildSESInput(t *testing.T) {
	req := &EmailRequest{
		From:    "alerts@shop.test",
		To:      []string{"ops@shop.test"},
		Subject: "CRITICAL on web-1",
		Body:    "plain",
		HTML:    "<b>html</b>",
	}
	in := BuildSESInput(req)

	if got := aws.ToString(in.FromEmailAddress); got != req.From {
		t.Errorf("FromEmailAddress = %q, want %q", got, req.From)
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "ops@shop.test" {
		t.Errorf("ToAddresses = %v, want [ops@shop.test]", in.Destination.ToAddresses)
	}
	msg := in.Content.Simple
	if got := aws.ToString(msg.Subject.Data); got != req.Subject {
		t.Errorf("Subject = %q, want %q", got, req.Subject)
	}
	if got := aws.ToString(msg.Body.Html.Data); got != req.HTML {
		t.Errorf("Html = %q, want %q", got, req.HTML)
	}
	if got := aws.ToString(msg.Body.Text.Data); got != req.Body {
		t.Errorf("Text = %q, want %q", got, req.Body)
	}
}

func TestBuildSESInput_HTMLOnly(t *testing.T) {
	in := BuildSESInput(&EmailRequest{From: "a@b.test", To: []string{"c@d.test"}, HTML: "<p>x</p>"})
	if in.Content.Simple.Body.Text != nil {
		t.Error("Text body set, want nil")
	}
}

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    []string
		notWant []string
	}{
		{
			name:    "plain",
			want:    []string{"Content-Type: text/plain", "Subject: Error", "To: a@x.test, b@x.test", "body text"},
			notWant: []string{"multipart/alternative"},
		},
		{
			name: "alternative",
			html: "<p>body html</p>",
			want: []string{"multipart/alternative", "text/plain", "text/html", "<p>body html</p>", "--logpipe-alt-boundary--"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := string(BuildMessage("from@x.test", []string{"a@x.test", "b@x.test"}, "Error", "body text", tt.html))
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("message missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(msg, w) {
					t.Errorf("message contains %q", w)
				}
			}
		})
	}
}

func TestResendProvider_Unconfigured(t *testing.T) {
	p := NewResendProvider("")
	if p.IsConfigured() {
		t.Error("IsConfigured() = true, want false")
	}
	if err := p.Send(context.Background(), &EmailRequest{To: []string{"a@x.test"}}); err == nil {
		t.Error("Send() error = nil, want error")
	}
	if !NewResendProvider("re_test").IsConfigured() {
		t.Error("IsConfigured() with key = false, want true")
	}
}

func TestSESProvider_Unconfigured(t *testing.T) {
	p := &SESProvider{region: "eu-west-1"}
	if p.IsConfigured() {
		t.Error("IsConfigured() = true, want false")
	}
	if err := p.Send(context.Background(), &EmailRequest{To: []string{"a@x.test"}}); err == nil {
		t.Error("Send() error = nil, want error")
	}
}

func TestRegistry_PrimaryFallsBackWhenUnconfigured(t *testing.T) {
	r := NewRegistry()
	r.Register(NewResendProvider(""))
	r.Register(NewSMTPProvider(SMTPConfig{Host: "localhost", Port: 25}))
	if err := r.SetPrimary("resend"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetFallback("smtp"); err != nil {
		t.Fatal(err)
	}
	p, err := r.Primary()
	if err != nil {
		t.Fatalf("Primary() error = %v", err)
	}
	if p.Name() != "smtp" {
		t.Errorf("Primary() = %q, want smtp", p.Name())
	}

	if err := r.SetPrimary("pigeon"); err == nil {
		t.Error("SetPrimary(pigeon) error = nil, want error")
	}

	empty := NewRegistry()
	if _, err := empty.Primary(); !errors.Is(err, ErrNoProvider) {
		t.Errorf("Primary() error = %v, want ErrNoProvider", err)
	}
}
