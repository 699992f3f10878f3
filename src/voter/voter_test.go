package voter

import (
	"context"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/EitanKalman/evote/src/logging"
	"github.com/EitanKalman/evote/src/voting"
	"github.com/EitanKalman/evote/src/wire"
)

func listenOnce(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	got := make(chan []byte, 1)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		got <- payload
	}()
	return ln.Addr().String(), got
}

func TestPadIsDeterministic(t *testing.T) {
	v := New(Config{K0: []byte("0123456789abcdef0123456789abcdef"), VoterID: "voter0", VoterIndex: 0})
	a := v.Pad()
	b := v.Pad()
	if a.Cmp(b) != 0 {
		t.Fatalf("Pad should be deterministic: %s != %s", a, b)
	}
}

func TestRunOriginalEfficientSendsBareDecimal(t *testing.T) {
	fvAddr, fvGot := listenOnce(t)
	tlAddr, tlGot := listenOnce(t)

	v := New(Config{
		K0:             []byte("0123456789abcdef0123456789abcdef"),
		VoterID:        "voter0",
		VoterIndex:     0,
		Vote:           1,
		Aggregation:    voting.Efficient,
		FinalVoterAddr: fvAddr,
		TallierAddr:    tlAddr,
		Logger:         logging.New("test"),
	})

	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case payload := <-fvGot:
		if _, ok := new(big.Int).SetString(string(payload), 10); !ok {
			t.Fatalf("expected decimal pad payload, got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pad")
	}

	select {
	case payload := <-tlGot:
		if _, ok := new(big.Int).SetString(string(payload), 10); !ok {
			t.Fatalf("expected bare decimal masked vote payload, got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for masked vote")
	}
}

func TestRunOriginalGenericUsesContentEnvelope(t *testing.T) {
	fvAddr, fvGot := listenOnce(t)
	tlAddr, tlGot := listenOnce(t)

	v := New(Config{
		K0:             []byte("0123456789abcdef0123456789abcdef"),
		VoterID:        "voter1",
		VoterIndex:     1,
		Vote:           0,
		Aggregation:    voting.Generic,
		FinalVoterAddr: fvAddr,
		TallierAddr:    tlAddr,
		Logger:         logging.New("test"),
	})

	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-fvGot

	select {
	case payload := <-tlGot:
		env, err := wire.DecodeEnvelope(payload)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != wire.TypeVote {
			t.Fatalf("expected vote envelope, got %q", env.Type)
		}
		if env.Content == nil {
			t.Fatalf("expected content field to carry the masked vote")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for masked vote")
	}
}

func TestRunDropoutSendsTimeLockedEnvelope(t *testing.T) {
	fvAddr, fvGot := listenOnce(t)
	tlAddr, tlGot := listenOnce(t)

	v := New(Config{
		K0:                 []byte("0123456789abcdef0123456789abcdef"),
		VoterID:            "voter0",
		VoterIndex:         0,
		Vote:               1,
		Aggregation:        voting.Efficient,
		FinalVoterAddr:     fvAddr,
		TallierAddr:        tlAddr,
		Dropout:            true,
		VoteTime:           time.Now().Add(-time.Second),
		SquaringsPerSecond: 1_000_000,
		TimeLockBits:       64,
		Logger:             logging.New("test"),
	})

	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-fvGot

	select {
	case payload := <-tlGot:
		env, err := wire.DecodeEnvelope(payload)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != wire.TypeTimeLocked {
			t.Fatalf("expected time_locked envelope, got %q", env.Type)
		}
		if env.N == nil || env.A == nil || env.T == nil || env.CK == nil || env.CM == nil || env.Nonce == nil {
			t.Fatalf("time_locked envelope missing a field: %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for time-locked vote")
	}
}
