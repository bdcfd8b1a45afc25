package network

import "testing"

func TestIsVPNPrefixes(t *testing.T) {
	cases := map[string]bool{
		"utun0":      true,
		"tun0":       true,
		"ppp0":       true,
		"wg0":        true,
		"tailscale0": true,
		"en0":        false,
		"eth0":       false,
	}
	for name, want := range cases {
		if got := isVPN(name); got != want {
			t.Errorf("isVPN(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsDockerPrefixes(t *testing.T) {
	cases := map[string]bool{
		"docker0": true,
		"veth1234": true,
		"br-abcdef": true,
		"en0":     false,
	}
	for name, want := range cases {
		if got := isDocker(name); got != want {
			t.Errorf("isDocker(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDefaultInterfacesReturnsNoError(t *testing.T) {
	if _, err := DefaultInterfaces(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
