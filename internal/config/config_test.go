package config

import (
	"errors"
	"testing"
)

func TestParseHosts(t *testing.T) {
	hosts, err := ParseHosts(
		"alpha.example.com,beta.example.com",
		"wrp~alpha.key~secret,wrp~beta.key",
		"10,20",
		"/certs/alpha.crt~/certs/alpha.key,/certs/beta.crt~/certs/beta.key",
	)
	if err != nil {
		t.Fatalf("ParseHosts failed: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}

	alpha := hosts[0]
	if alpha.Addr != "alpha.example.com" || alpha.User != "wrp" || alpha.KeyFile != "alpha.key" {
		t.Errorf("unexpected first host: %+v", alpha)
	}
	if alpha.Passphrase != "secret" {
		t.Errorf("expected passphrase on first host, got %q", alpha.Passphrase)
	}
	if alpha.MaxContainers != 10 {
		t.Errorf("expected max 10, got %d", alpha.MaxContainers)
	}
	if alpha.TLSCert != "/certs/alpha.crt" || alpha.TLSKey != "/certs/alpha.key" {
		t.Errorf("unexpected tls material: %+v", alpha)
	}

	if hosts[1].Passphrase != "" {
		t.Errorf("second host should have no passphrase, got %q", hosts[1].Passphrase)
	}
	if TotalMaxContainers(hosts) != 30 {
		t.Errorf("expected total capacity 30, got %d", TotalMaxContainers(hosts))
	}
}

func TestParseHostsLengthMismatch(t *testing.T) {
	cases := []struct {
		name  string
		hosts string
		keys  string
		max   string
		certs string
	}{
		{"missing key", "a,b", "wrp~a.key", "10,10", "c~k,c~k"},
		{"missing max", "a,b", "wrp~a.key,wrp~b.key", "10", "c~k,c~k"},
		{"missing cert", "a,b", "wrp~a.key,wrp~b.key", "10,10", "c~k"},
		{"empty hosts", "", "wrp~a.key", "10", "c~k"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHosts(tc.hosts, tc.keys, tc.max, tc.certs)
			if !errors.Is(err, ErrHostListMismatch) {
				t.Errorf("expected ErrHostListMismatch, got %v", err)
			}
		})
	}
}

func TestParseHostsMalformedEntries(t *testing.T) {
	if _, err := ParseHosts("a", "useronly", "10", "c~k"); !errors.Is(err, ErrHostListMismatch) {
		t.Errorf("credential without keyfile should fail, got %v", err)
	}
	if _, err := ParseHosts("a", "wrp~a.key", "ten", "c~k"); !errors.Is(err, ErrHostListMismatch) {
		t.Errorf("non-numeric max containers should fail, got %v", err)
	}
	if _, err := ParseHosts("a", "wrp~a.key", "10", "certonly"); !errors.Is(err, ErrHostListMismatch) {
		t.Errorf("tls entry without key should fail, got %v", err)
	}
}
