package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

func TestSendPostsForm(t *testing.T) {
	var gotPath, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotBody = r.PostForm.Get("Body") + "|" + r.PostForm.Get("To") + "|" + r.PostForm.Get("From")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := New(Config{AccountSID: "AC1", AuthToken: "tok", From: "+15550001", To: "+15550002", BaseURL: srv.URL})
	id, err := c.Send(context.Background(), gateway.Message{Content: "Time to take: Levodopa"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", id)
	assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", gotPath)
	assert.Equal(t, "AC1", gotUser)
	assert.Equal(t, "Time to take: Levodopa|+15550002|+15550001", gotBody)
}

func TestSendReportsTwilioError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	c := New(Config{AccountSID: "AC1", AuthToken: "tok", From: "+1", To: "bad", BaseURL: srv.URL})
	_, err := c.Send(context.Background(), gateway.Message{Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
}

func TestUnconfigured(t *testing.T) {
	cfg := Config{AccountSID: "AC1"}
	assert.False(t, cfg.Configured())
	assert.Equal(t, []string{"TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER", "PD_TRACKER_PHONE"}, cfg.Missing())
	_, err := New(cfg).Send(context.Background(), gateway.Message{Content: "x"})
	assert.Error(t, err)
}
