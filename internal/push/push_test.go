package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/sebdah/goldie/v2"
)

func TestCheckInPayload_Golden(t *testing.T) {
	b, err := json.MarshalIndent(CheckInPayload("01JEPISODE"), "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "checkin_payload", b)
}

func TestEndpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		ep      Endpoint
		wantErr bool
	}{
		{"webhook ok", Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: "https://example.com/hook"}, false},
		{"discord ok", Endpoint{OwnerID: "u1", Kind: KindDiscord, Address: "123456"}, false},
		{"no owner", Endpoint{Kind: KindDiscord, Address: "123"}, true},
		{"no address", Endpoint{OwnerID: "u1", Kind: KindWebhook}, true},
		{"webhook not url", Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: "not a url"}, true},
		{"webhook ftp", Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: "ftp://example.com"}, true},
		{"unknown kind", Endpoint{OwnerID: "u1", Kind: "sms", Address: "+1555"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookSender_Success(t *testing.T) {
	var gotBody []byte
	var gotSig, gotType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotType = r.Header.Get("Content-Type")
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.Client())
	ep := Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: server.URL, Secret: "shh"}
	if err := sender.Send(context.Background(), ep, CheckInPayload("e1")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotSig != "sha256="+Sign("shh", gotBody) {
		t.Errorf("signature = %q does not match body", gotSig)
	}
	var p Payload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("body is not a payload: %v", err)
	}
	if p.Data.EpisodeID != "e1" {
		t.Errorf("episode_id = %q, want e1", p.Data.EpisodeID)
	}
}

func TestWebhookSender_NoSecretNoSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("signature sent without secret")
		}
	}))
	defer server.Close()

	ep := Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: server.URL}
	if err := NewWebhookSender(nil).Send(context.Background(), ep, CheckInPayload("e1")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestWebhookSender_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	ep := Endpoint{OwnerID: "u1", Kind: KindWebhook, Address: server.URL}
	err := NewWebhookSender(nil).Send(context.Background(), ep, CheckInPayload("e1"))
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Fatalf("Send() error = %v, want status 410", err)
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestDiscordSender(t *testing.T, rt roundTripFunc) *DiscordSender {
	t.Helper()
	d, err := NewDiscordSender("test-token")
	if err != nil {
		t.Fatalf("NewDiscordSender() error = %v", err)
	}
	d.session.Client = &http.Client{Transport: rt}
	return d
}

func TestDiscordSender_PostsEmbed(t *testing.T) {
	var gotPath, gotAuth string
	var msg discordgo.MessageSend

	d := newTestDiscordSender(t, func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &msg)
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Body:       io.NopCloser(strings.NewReader(`{"id":"m1","channel_id":"chan-1"}`)),
			Header:     make(http.Header),
		}, nil
	})

	ep := Endpoint{OwnerID: "u1", Kind: KindDiscord, Address: "chan-1"}
	if err := d.Send(context.Background(), ep, CheckInPayload("e1")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !strings.HasSuffix(gotPath, "/channels/chan-1/messages") {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bot test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(msg.Embeds) != 1 || msg.Embeds[0].Title != "Migraine Check-in" {
		t.Fatalf("embeds = %+v", msg.Embeds)
	}
	if len(msg.Embeds[0].Fields) != 2 {
		t.Errorf("fields = %d, want 2 actions", len(msg.Embeds[0].Fields))
	}
}

func TestDiscordSender_Error(t *testing.T) {
	d := newTestDiscordSender(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusForbidden,
			Status:     "403 Forbidden",
			Body:       io.NopCloser(strings.NewReader(`{"message":"Missing Access","code":50001}`)),
			Header:     make(http.Header),
		}, nil
	})

	ep := Endpoint{OwnerID: "u1", Kind: KindDiscord, Address: "chan-1"}
	if err := d.Send(context.Background(), ep, CheckInPayload("e1")); err == nil {
		t.Fatal("Send() expected error on 403")
	}
}

func TestNewDiscordSender_RequiresToken(t *testing.T) {
	if _, err := NewDiscordSender(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

type recordingTransport struct {
	sent []Endpoint
	err  error
}

func (r *recordingTransport) Send(_ context.Context, ep Endpoint, _ Payload) error {
	r.sent = append(r.sent, ep)
	return r.err
}

func TestRouter(t *testing.T) {
	webhook := &recordingTransport{}
	discord := &recordingTransport{err: errors.New("down")}
	r := NewRouter().Handle(KindWebhook, webhook).Handle(KindDiscord, discord)

	ctx := context.Background()
	p := CheckInPayload("e1")

	if err := r.Send(ctx, Endpoint{Kind: KindWebhook, Address: "a"}, p); err != nil {
		t.Errorf("webhook Send() error = %v", err)
	}
	if err := r.Send(ctx, Endpoint{Kind: KindDiscord, Address: "b"}, p); err == nil {
		t.Error("discord Send() should surface transport error")
	}
	if err := r.Send(ctx, Endpoint{Kind: "sms", Address: "c"}, p); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownKind", err)
	}
	if len(webhook.sent) != 1 || len(discord.sent) != 1 {
		t.Errorf("sent webhook=%d discord=%d", len(webhook.sent), len(discord.sent))
	}
}
