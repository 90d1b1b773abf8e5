package leaptest

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"encoding/json"
	"net"
	"sync"
)

// PairingServer is a fake pairing port. It answers CSR submissions
// with rejections until the configured number has been consumed,
// simulating the window before the physical button press, then signs
// the CSR.
type PairingServer struct {
	authority *Authority
	listener  net.Listener

	mu         sync.Mutex
	rejections int
	requests   int
	closed     bool
	wg         sync.WaitGroup
}

// pairSubmission mirrors the client's CSR submission shape.
type pairSubmission struct {
	Header struct {
		RequestType string `json:"RequestType"`
		URL         string `json:"Url"`
	} `json:"Header"`
	Body struct {
		CommandType string `json:"CommandType"`
		Parameters  struct {
			CSR         string `json:"CSR"`
			DisplayName string `json:"DisplayName"`
			DeviceUID   string `json:"DeviceUID"`
			Role        string `json:"Role"`
		} `json:"Parameters"`
	} `json:"Body"`
}

// pairReply mirrors the bridge's pairing response shape.
type pairReply struct {
	Header struct {
		StatusCode string `json:"StatusCode"`
	} `json:"Header"`
	Body *pairReplyBody `json:"Body,omitempty"`
}

type pairReplyBody struct {
	SigningResult signingResult `json:"SigningResult"`
}

type signingResult struct {
	Certificate     string `json:"Certificate"`
	RootCertificate string `json:"RootCertificate"`
}

// NewPairingServer starts a fake pairing port that rejects the first
// `rejections` submissions before accepting.
func NewPairingServer(authority *Authority, rejections int) (*PairingServer, error) {
	tlsConfig, err := authority.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	// Pairing happens before any client certificate exists.
	tlsConfig.ClientAuth = tls.NoClientCert

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &PairingServer{
		authority:  authority,
		listener:   tls.NewListener(listener, tlsConfig),
		rejections: rejections,
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listener address (host:port).
func (s *PairingServer) Addr() string {
	return s.listener.Addr().String()
}

// Requests returns how many CSR submissions the server has seen.
func (s *PairingServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Close stops the listener.
func (s *PairingServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *PairingServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *PairingServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}

		var sub pairSubmission
		if err := json.Unmarshal(line, &sub); err != nil {
			continue
		}
		if sub.Header.URL != "/pair" || sub.Body.CommandType != "CSR" {
			s.writeReply(conn, "400 BadRequest", "", "")
			continue
		}

		s.mu.Lock()
		s.requests++
		reject := s.rejections > 0
		if reject {
			s.rejections--
		}
		s.mu.Unlock()

		if reject {
			s.writeReply(conn, "401 Unauthorized", "", "")
			continue
		}

		certPEM, err := s.authority.SignCSR([]byte(sub.Body.Parameters.CSR))
		if err != nil {
			s.writeReply(conn, "400 BadRequest", "", "")
			continue
		}
		s.writeReply(conn, "200 OK", string(certPEM), string(s.authority.CAPEM()))
	}
}

func (s *PairingServer) writeReply(conn net.Conn, status, certPEM, caPEM string) {
	var reply pairReply
	reply.Header.StatusCode = status
	if certPEM != "" {
		reply.Body = &pairReplyBody{SigningResult: signingResult{
			Certificate:     certPEM,
			RootCertificate: caPEM,
		}}
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_, _ = conn.Write(append(data, '\r', '\n'))
}
