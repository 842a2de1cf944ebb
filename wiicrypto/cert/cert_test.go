package cert

import "testing"

func TestFromNameWithPKI(t *testing.T) {
	tests := []struct {
		name string
		pki  PKI
		want Issuer
	}{
		{"Root", PKIDpki, IssuerDpkiRoot},
		{"Root", PKIPpki, IssuerPpkiRoot},
		{"Root-CA00000001-XS00000003", PKIUnknown, IssuerPpkiTicket},
		{"not-a-real-issuer", PKIUnknown, IssuerUnknown},
	}
	for _, tt := range tests {
		if got := FromNameWithPKI(tt.name, tt.pki); got != tt.want {
			t.Errorf("FromNameWithPKI(%q, %v) = %v, want %v", tt.name, tt.pki, got, tt.want)
		}
	}
}

func TestIssuerNameRoundTrip(t *testing.T) {
	for issuer, name := range issuerNames {
		if name == "Root" {
			continue
		}
		if got := FromName(name); got != issuer {
			t.Errorf("FromName(%q) = %v, want %v", name, got, issuer)
		}
	}
}
