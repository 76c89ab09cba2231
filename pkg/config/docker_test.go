package config

import "testing"

func TestResolveHostForDocker_NonLocalHostsUnchanged(t *testing.T) {
	// Hosts other than the localhost variants are never rewritten,
	// regardless of where the test itself runs.
	for _, host := range []string{"db.example.com", "10.0.0.12", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}

func TestResolveHostForDocker_LocalhostVariants(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		got := ResolveHostForDocker(host)
		if IsRunningInDocker() {
			if got != "host.docker.internal" {
				t.Errorf("in Docker: ResolveHostForDocker(%q) = %q, want host.docker.internal", host, got)
			}
		} else if got != host {
			t.Errorf("outside Docker: ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}
