package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guincheuse/internal/config"
	"guincheuse/internal/httperr"
	"guincheuse/internal/mail"
	"guincheuse/internal/model"
	"guincheuse/internal/ratelimit"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []mail.Message
	err    error
	onSend func()
}

func (f *fakeMailer) Send(_ context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeNotifier struct {
	got []model.Reservation
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, r model.Reservation) error {
	f.got = append(f.got, r)
	return f.err
}

type testEnv struct {
	svc    *Service
	mailer *fakeMailer
	clock  time.Time
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{mailer: &fakeMailer{}, clock: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Minute).
		WithClock(func() time.Time { return env.clock })
	env.svc = NewService(Options{
		Venue:   config.DefaultConfig().Venue,
		From:    "contact@laguincheuse.fr",
		Limiter: limiter,
		Mailer:  env.mailer,
	})
	return env
}

func validRequest() Request {
	return Request{
		FullName:  "Ada Lovelace",
		Email:     "ada@example.com",
		PartySize: "4",
		Date:      "2026-03-12",
		Time:      "20:00",
	}
}

func statusOf(t *testing.T, err error) *httperr.Error {
	t.Helper()
	var he *httperr.Error
	require.True(t, errors.As(err, &he), "expected *httperr.Error, got %v", err)
	return he
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Request)
		want string
	}{
		{"valid", func(*Request) {}, ""},
		{"empty email", func(r *Request) { r.Email = "" }, MsgRequired},
		{"empty name", func(r *Request) { r.FullName = "" }, MsgRequired},
		{"empty date", func(r *Request) { r.Date = "" }, MsgRequired},
		{"empty time", func(r *Request) { r.Time = "" }, MsgRequired},
		{"empty party size", func(r *Request) { r.PartySize = "" }, MsgRequired},
		{"not an email", func(r *Request) { r.Email = "not-an-email" }, MsgInvalidEmail},
		{"no tld", func(r *Request) { r.Email = "a@b" }, MsgInvalidEmail},
		{"space inside", func(r *Request) { r.Email = "a b@c.fr" }, MsgInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.edit(&r)
			err := r.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			he := statusOf(t, err)
			assert.Equal(t, http.StatusBadRequest, he.Status)
			assert.Equal(t, tt.want, he.Message)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	r := Request{FullName: "  ", Email: " ada@example.com ", Date: "d", Time: "t"}.WithDefaults()
	assert.Equal(t, "Client", r.FullName)
	assert.Equal(t, "Non communiqué", r.Phone)
	assert.Equal(t, "ada@example.com", r.Email)
	assert.Equal(t, "2", r.PartySize)
	assert.Equal(t, "", r.Notes)
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "unknown", ClientIdentity(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIdentity(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIdentity(r))
}

func TestSubmitSendsToVisitorAndVenue(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.svc.Submit(context.Background(), "1.2.3.4", validRequest()))

	require.Equal(t, 1, env.mailer.count())
	m := env.mailer.sent[0]
	assert.Equal(t, "contact@laguincheuse.fr", m.From)
	assert.Equal(t, []string{"ada@example.com", "contact@laguincheuse.fr"}, m.To)
	assert.Equal(t, "ada@example.com", m.ReplyTo)
	assert.Equal(t, Subject, m.Subject)
	assert.Contains(t, m.Text, "Bonjour Ada Lovelace,")
	assert.Contains(t, m.HTML, "Bonjour Ada Lovelace,")
}

func TestSubmitNamedFromSendsVenueCopyToBareAddress(t *testing.T) {
	env := newEnv(t)
	env.svc.from = "La Guincheuse <contact@laguincheuse.fr>"
	require.NoError(t, env.svc.Submit(context.Background(), "1.2.3.4", validRequest()))

	require.Equal(t, 1, env.mailer.count())
	m := env.mailer.sent[0]
	assert.Equal(t, "La Guincheuse <contact@laguincheuse.fr>", m.From)
	assert.Equal(t, []string{"ada@example.com", "contact@laguincheuse.fr"}, m.To)
}

func TestSubmitEmptyEmailSendsNothing(t *testing.T) {
	env := newEnv(t)
	req := validRequest()
	req.Email = ""
	he := statusOf(t, env.svc.Submit(context.Background(), "1.2.3.4", req))
	assert.Equal(t, MsgRequired, he.Message)
	assert.Zero(t, env.mailer.count())
}

func TestSubmitRateLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))

	env.clock = env.clock.Add(30 * time.Second)
	he := statusOf(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
	assert.Equal(t, http.StatusTooManyRequests, he.Status)
	assert.Equal(t, MsgRateLimited, he.Message)

	// Another address from the same client is a different key.
	other := validRequest()
	other.Email = "grace@example.com"
	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", other))

	// The rejection did not move the window: 61s after the first send.
	env.clock = env.clock.Add(31 * time.Second)
	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
	assert.Equal(t, 3, env.mailer.count())
}

func TestSubmitWindowStartsAfterSlowSend(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.mailer.onSend = func() { env.clock = env.clock.Add(20 * time.Second) }
	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
	env.mailer.onSend = nil

	// 61s after the submission began, 41s after the mail went out.
	env.clock = env.clock.Add(41 * time.Second)
	he := statusOf(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
	assert.Equal(t, MsgRateLimited, he.Message)

	env.clock = env.clock.Add(20 * time.Second)
	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
}

func TestSubmitFailedSendDoesNotStartWindow(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.mailer.err = errors.New("connection refused")
	he := statusOf(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, MsgDeliveryFailed, he.Message)

	env.mailer.err = nil
	require.NoError(t, env.svc.Submit(ctx, "1.2.3.4", validRequest()))
}

func TestSubmitMisconfigured(t *testing.T) {
	svc := NewService(Options{
		Limiter: ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Minute),
		MailErr: mail.ErrNotConfigured,
	})
	he := statusOf(t, svc.Submit(context.Background(), "x", validRequest()))
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, MsgMisconfigured, he.Message)
	assert.ErrorIs(t, he, mail.ErrNotConfigured)

	// Validation still comes first.
	bad := validRequest()
	bad.Email = "nope"
	assert.Equal(t, MsgInvalidEmail, statusOf(t, svc.Submit(context.Background(), "x", bad)).Message)
}

func TestSubmitNotifierFailureIsIgnored(t *testing.T) {
	env := newEnv(t)
	n := &fakeNotifier{err: errors.New("twilio down")}
	env.svc.notifier = n

	require.NoError(t, env.svc.Submit(context.Background(), "1.2.3.4", validRequest()))
	require.Len(t, n.got, 1)
	assert.Equal(t, "ada@example.com", n.got[0].Email)
}

func TestComposeEscapesMarkup(t *testing.T) {
	r := validRequest()
	r.FullName = `<script>alert("x")</script>`
	r.Notes = "Table près de la scène\n<b>anniversaire</b> & 'surprise'"
	html, text, err := Compose(config.DefaultConfig().Venue, r.WithDefaults())
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "Table près de la scène<br />&lt;b&gt;anniversaire&lt;/b&gt; &amp; &#39;surprise&#39;")
	assert.Contains(t, html, `href="tel:&#43;33956671472"`)
	assert.Contains(t, html, "09 56 67 14 72")

	assert.Contains(t, text, "Bonjour <script>")
	assert.Contains(t, text, "- Notes : Table près de la scène\n<b>anniversaire</b>")
	assert.Contains(t, text, "English recap:")
}

func TestComposeDefaultsNotes(t *testing.T) {
	html, text, err := Compose(config.DefaultConfig().Venue, validRequest().WithDefaults())
	require.NoError(t, err)
	assert.Contains(t, html, noNotes)
	assert.Contains(t, text, "- Notes : "+noNotes)
	assert.Contains(t, text, "- Téléphone : Non communiqué")
	assert.True(t, strings.HasSuffix(text, "La Guincheuse\n266 Rue du Faubourg Saint-Martin, 75010 Paris"))
}

func TestHandler(t *testing.T) {
	env := newEnv(t)
	h := Handler(env.svc)

	post := func(body string) (*httptest.ResponseRecorder, map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/api/reservation", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var out map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	rec, out := post("{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBadRequest, out["error"])

	rec, out = post(`{"email":"ada@example.com","fullName":"Ada","date":"2026-03-12","time":"20:00","partySize":"2"} xyz`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBadRequest, out["error"])
	assert.Zero(t, env.mailer.count())

	rec, out = post(`{"email":"not-an-email","fullName":"A","date":"d","time":"t","partySize":"2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidEmail, out["error"])

	body := `{"email":"ada@example.com","fullName":"Ada","date":"2026-03-12","time":"20:00","partySize":"2"}`
	rec, out = post(body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MsgAccepted, out["message"])
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	rec, out = post(body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, MsgRateLimited, out["error"])
}
