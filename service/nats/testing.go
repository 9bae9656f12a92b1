package nats

import (
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// TestNATSURL returns the NATS server used by integration tests.
func TestNATSURL() string {
	if u := os.Getenv("TEST_NATS_URL"); u != "" {
		return u
	}
	return nats.DefaultURL
}

// SkipIfNoNATS skips the test if the test NATS server is not available.
func SkipIfNoNATS(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_NATS_TESTS") != "" {
		t.Skip("Skipping NATS test (SKIP_NATS_TESTS is set)")
	}

	nc, err := nats.Connect(TestNATSURL(), nats.Timeout(2*time.Second))
	if err != nil {
		t.Skipf("Skipping NATS test: cannot connect to test NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		t.Skipf("Skipping NATS test: JetStream unavailable: %v", err)
	}
	if _, err := js.AccountInfo(); err != nil {
		t.Skipf("Skipping NATS test: JetStream unavailable: %v", err)
	}
}
