package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"haven/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain takes first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"real ip header", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr ipv4", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote addr ipv6", nil, "[::1]:5555", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata_PopulatesRequestContext(t *testing.T) {
	var captured *http.Request
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
	}))

	r := httptest.NewRequest(http.MethodPost, "/chat/rooms/r1/messages", nil)
	r.RemoteAddr = "192.0.2.7:4000"
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	r.Header.Set(HeaderDeviceID, "device-42")
	h.ServeHTTP(httptest.NewRecorder(), r)

	ctx := captured.Context()
	assert.Equal(t, "192.0.2.7", requestcontext.ClientIP(ctx))
	assert.Equal(t, "device-42", requestcontext.DeviceID(ctx))
	assert.Contains(t, requestcontext.Device(ctx), "Chrome")
	assert.Equal(t, "/chat/rooms/r1/messages", requestcontext.EndpointFrom(ctx).Path)
}

func TestDescribeDevice_Empty(t *testing.T) {
	assert.Empty(t, DescribeDevice(""))
}
