package fedwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMessageRoundTrip asserts that every defined message kind survives an
// encode/decode cycle bit for bit.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		&Handshake{
			NodeID:          "relay-eu-04",
			ProtocolVersion: ProtocolVersion,
			PublicKey:       "pubkey_relay-eu-04",
			PeerCount:       7,
			Timestamp:       1700000000001,
		},
		&HandshakeAck{
			NodeID:       "nexus-core-01",
			Accepted:     true,
			SessionID:    "6e1b24c2-9f0f-4a7e-8a47-0a2f5a3c9d11",
			ObservedAddr: "203.0.113.9:51423",
		},
		&HandshakeAck{
			NodeID:          "nexus-core-01",
			Accepted:        false,
			RejectionReason: "incompatible protocol: 99",
		},
		&Heartbeat{
			NodeID:        "relay-eu-04",
			Timestamp:     1700000000002,
			UptimeSeconds: 3600,
			LoadFactor:    0.14,
		},
		&LinkUpdate{
			Reporter: "relay-eu-04",
			Tensors: []TensorRecord{
				{
					FromNode:        "relay-eu-04",
					ToNode:          "nexus-core-01",
					LatencyMeanMs:   23.5,
					LatencyStdDevMs: 2.1,
					JitterMs:        0.8,
					BandwidthMbps:   95,
					Reliability:     0.995,
					Cost:            1.5,
					Version:         42,
				},
				{
					FromNode:      "nexus-core-01",
					ToNode:        "relay-us-11",
					LatencyMeanMs: 88,
					BandwidthMbps: 40,
					Reliability:   0.97,
					Version:       7,
				},
			},
		},
		&Goodbye{
			NodeID: "relay-eu-04",
			Reason: "scheduled maintenance",
		},
		&NodeAnnounce{
			NodeID:           "relay-us-11",
			Address:          "198.51.100.4:7777",
			PublicKey:        "pubkey_relay-us-11",
			TrustWeight:      0.8,
			Relay:            true,
			MaxBandwidthMbps: 100,
		},
		&RouteRequest{
			RequestID:           "req-001",
			Destination:         "relay-us-11",
			PriorityLatency:     0.3,
			PriorityAnonymity:   0.2,
			PriorityCost:        0.2,
			PriorityReliability: 0.3,
			MaxHops:             5,
		},
		&RouteResponse{
			RequestID:      "req-001",
			Path:           []string{"nexus-core-01", "relay-eu-04", "relay-us-11"},
			TotalLatencyMs: 111.5,
			Stability:      0.93,
			Cost:           3.0,
			Success:        true,
		},
		&RouteResponse{
			RequestID: "req-002",
			Path:      []string{},
			Success:   false,
			Error:     "no routes available to relay-ap-09",
		},
	}

	for _, msg := range msgs {
		msg := msg
		t.Run(msg.MsgType().String(), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			_, err := WriteMessage(&buf, msg, ProtocolVersion)
			require.NoError(t, err)

			got, err := ReadMessage(&buf, ProtocolVersion)
			require.NoError(t, err)
			require.Equal(t, msg, got)
		})
	}
}

// TestUnknownMessageType asserts that a message of an undefined type fails
// parsing with an UnknownMessage error instead of being silently skipped.
func TestUnknownMessageType(t *testing.T) {
	t.Parallel()

	// Type 999 is not a defined message kind.
	payload := []byte{0x03, 0xe7, 0xde, 0xad}

	_, err := ReadMessage(bytes.NewReader(payload), ProtocolVersion)

	var unknown *UnknownMessage
	require.ErrorAs(t, err, &unknown)
}

// TestRouteResponseEmptyPath documents that zero-length string slices decode
// as empty, non-nil slices so round trips compare equal.
func TestRouteResponseEmptyPath(t *testing.T) {
	t.Parallel()

	msg := &RouteResponse{
		RequestID: "req-003",
		Path:      []string{},
		Success:   false,
		Error:     "destination unreachable",
	}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg, ProtocolVersion)
	require.NoError(t, err)

	got, err := ReadMessage(&buf, ProtocolVersion)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}
