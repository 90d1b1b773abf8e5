package pairing

import (
	"github.com/leap-protocol/leap-go/pkg/wire"
)

// Pairing submission defaults. The UID and role are fixed values the
// bridges accept for locally paired clients.
const (
	DefaultDisplayName = "leap-go"
	deviceUID          = "000000000000"
	pairingRole        = "Admin"
)

// csrSubmission is the CSR submission sent to the pairing port. The
// shape predates the communique envelope and is specific to /pair.
type csrSubmission struct {
	Header csrSubmissionHeader `json:"Header"`
	Body   csrSubmissionBody   `json:"Body"`
}

type csrSubmissionHeader struct {
	RequestType string `json:"RequestType"`
	URL         string `json:"Url"`
}

type csrSubmissionBody struct {
	CommandType string        `json:"CommandType"`
	Parameters  csrParameters `json:"Parameters"`
}

type csrParameters struct {
	CSR         string `json:"CSR"`
	DisplayName string `json:"DisplayName"`
	DeviceUID   string `json:"DeviceUID"`
	Role        string `json:"Role"`
}

// newCSRSubmission builds the submission for a PEM-encoded CSR.
func newCSRSubmission(csrPEM, displayName string) csrSubmission {
	return csrSubmission{
		Header: csrSubmissionHeader{
			RequestType: "Execute",
			URL:         "/pair",
		},
		Body: csrSubmissionBody{
			CommandType: "CSR",
			Parameters: csrParameters{
				CSR:         csrPEM,
				DisplayName: displayName,
				DeviceUID:   deviceUID,
				Role:        pairingRole,
			},
		},
	}
}

// pairResponse is the bridge's answer to a CSR submission. The
// signing result is only present on acceptance.
type pairResponse struct {
	Header struct {
		StatusCode *wire.Status `json:"StatusCode"`
	} `json:"Header"`
	Body struct {
		SigningResult struct {
			Certificate     string `json:"Certificate"`
			RootCertificate string `json:"RootCertificate"`
		} `json:"SigningResult"`
	} `json:"Body"`
}

// accepted reports whether the bridge signed the CSR.
func (r *pairResponse) accepted() bool {
	return r.Header.StatusCode != nil && r.Header.StatusCode.IsSuccess() &&
		r.Body.SigningResult.Certificate != ""
}
