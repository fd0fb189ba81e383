// Package dns implements the non-blocking A/AAAA resolver spec.md §4.3
// requires: one outstanding request per resolving connection, tracked by
// transaction ID, retried against nothing (a single resolver, per
// spec.md) and bounded by a deadline the manager's poll loop enforces.
//
// Wire encoding is delegated to golang.org/x/net/dns/dnsmessage, already
// a transitive dependency of the teacher's golang.org/x/net requirement,
// instead of a hand-rolled DNS wire parser — this is exactly the
// ecosystem package for the job.
package dns

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// Request tracks one outstanding resolution.
type Request struct {
	TxID     uint16
	Question string
	WantV6   bool
	Deadline time.Time
	// ConnID identifies the connection awaiting this resolution; the
	// manager looks it up by this value when a response or timeout
	// arrives, rather than embedding a pointer here.
	ConnID uint64
}

// BuildQuery encodes an A (or AAAA, if v6 is true) query for name.
func BuildQuery(txID uint16, name string, v6 bool) ([]byte, error) {
	qtype := dnsmessage.TypeA
	if v6 {
		qtype = dnsmessage.TypeAAAA
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:               txID,
		RecursionDesired: true,
	})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	nameField, err := dnsmessage.NewName(ensureFQDN(name))
	if err != nil {
		return nil, fmt.Errorf("dns: invalid name %q: %w", name, err)
	}
	if err := b.Question(dnsmessage.Question{
		Name:  nameField,
		Type:  qtype,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return nil, err
	}
	return b.Finish()
}

func ensureFQDN(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}

// ParseResponse extracts the transaction ID and the first A/AAAA answer
// from a DNS response packet. ErrNXDomain and ErrNoAnswer distinguish the
// two failure modes spec.md §4.3 calls out: NXDOMAIN should error and
// close the connection, while a malformed or answerless response should
// be treated as "no answer yet", subject to the resolver's own timeout.
var (
	ErrNXDomain = fmt.Errorf("dns: name does not exist")
	ErrNoAnswer = fmt.Errorf("dns: no answer in response")
)

// NXDomainError is the error ParseResponse returns for an authoritative
// NXDOMAIN reply. The DNS header's transaction ID is readable regardless
// of RCode, so it's carried here: unlike the Answer of a successful
// resolve, an NXDOMAIN reply has no answer record to carry it instead,
// and the caller still needs it to know which pending connection failed.
type NXDomainError struct {
	TxID uint16
}

func (e *NXDomainError) Error() string { return ErrNXDomain.Error() }

// Is lets errors.Is(err, ErrNXDomain) match a *NXDomainError.
func (e *NXDomainError) Is(target error) bool { return target == ErrNXDomain }

// Answer is the decoded result of a successful resolution.
type Answer struct {
	TxID uint16
	IP   netip.Addr
}

// ParseResponse decodes pkt and returns the first usable A/AAAA record.
func ParseResponse(pkt []byte) (*Answer, error) {
	var p dnsmessage.Parser
	hdr, err := p.Start(pkt)
	if err != nil {
		return nil, ErrNoAnswer
	}
	if hdr.RCode == dnsmessage.RCodeNameError {
		return nil, &NXDomainError{TxID: hdr.ID}
	}
	if err := p.SkipAllQuestions(); err != nil {
		return nil, ErrNoAnswer
	}
	for {
		res, err := p.AnswerHeader()
		if err != nil {
			return nil, ErrNoAnswer
		}
		switch res.Type {
		case dnsmessage.TypeA:
			rr, err := p.AResource()
			if err != nil {
				return nil, ErrNoAnswer
			}
			return &Answer{TxID: hdr.ID, IP: netip.AddrFrom4(rr.A)}, nil
		case dnsmessage.TypeAAAA:
			rr, err := p.AAAAResource()
			if err != nil {
				return nil, ErrNoAnswer
			}
			return &Answer{TxID: hdr.ID, IP: netip.AddrFrom16(rr.AAAA)}, nil
		default:
			if err := p.SkipAnswer(); err != nil {
				return nil, ErrNoAnswer
			}
		}
	}
}
