package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutboundURL(t *testing.T) {
	private := URLValidationOptions{AllowPrivateNetworks: true}
	local := URLValidationOptions{AllowLocalhost: true}

	tests := []struct {
		name string
		raw  string
		opts URLValidationOptions
		want error
	}{
		{name: "public webhook", raw: " https://hooks.example.com/georemind "},
		{name: "ftp", raw: "ftp://hooks.example.com/notify", want: ErrUnsupportedScheme},
		{name: "localhost", raw: "http://localhost:9000/hook", want: ErrLocalTarget},
		{name: "localhost subdomain", raw: "http://api.localhost/hook", want: ErrLocalTarget},
		{name: "loopback ip", raw: "http://127.0.0.1:8080/hook", want: ErrLocalTarget},
		{name: "mapped loopback", raw: "http://[::ffff:127.0.0.1]/hook", want: ErrLocalTarget},
		{name: "loopback allowed", raw: "http://127.0.0.1:8080/hook", opts: local},
		{name: "private ip", raw: "http://10.0.0.5/hook", want: ErrPrivateTarget},
		{name: "link local", raw: "http://169.254.169.254/latest", want: ErrPrivateTarget},
		{name: "private allowed", raw: "http://192.168.1.20/hook", opts: private},
		{name: "private allowance keeps loopback closed", raw: "http://[::1]/hook", opts: private, want: ErrLocalTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ValidateOutboundURL(tt.raw, tt.opts)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.Host)
		})
	}
}

func TestValidateOutboundURLRejectsMissingParts(t *testing.T) {
	_, err := ValidateOutboundURL("   ", URLValidationOptions{})
	assert.ErrorContains(t, err, "required")

	_, err = ValidateOutboundURL("https:///path-only", URLValidationOptions{})
	assert.ErrorContains(t, err, "no host")
}
