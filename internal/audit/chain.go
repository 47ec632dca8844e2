package audit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/khanghh/kadmin/internal/common"
	"github.com/khanghh/kadmin/model"
	"github.com/valyala/bytebufferpool"
)

func writeOptionalID(buf *bytebufferpool.ByteBuffer, id *uint) {
	if id != nil {
		buf.B = strconv.AppendUint(buf.B, uint64(*id), 10)
	}
	buf.WriteByte('|')
}

// computeHash links a record to its predecessor. Every persisted field except the
// row id and the hash itself is covered.
func computeHash(key []byte, record *model.AuditLog) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(record.PrevHash)
	buf.WriteByte('|')
	buf.WriteString(record.EventID)
	buf.WriteByte('|')
	buf.B = strconv.AppendUint(buf.B, uint64(record.TenantID), 10)
	buf.WriteByte('|')
	writeOptionalID(buf, record.ActorID)
	writeOptionalID(buf, record.TargetID)
	buf.WriteString(record.EntityType)
	buf.WriteByte('|')
	buf.WriteString(record.EntityID)
	buf.WriteByte('|')
	buf.WriteString(record.Action)
	buf.WriteByte('|')
	buf.WriteString(record.Details)
	buf.WriteByte('|')
	if len(record.Metadata) > 0 {
		// map keys are emitted in sorted order
		raw, err := json.Marshal(map[string]any(record.Metadata))
		if err != nil {
			return "", err
		}
		buf.Write(raw)
	}
	buf.WriteByte('|')
	buf.WriteString(record.IP)
	buf.WriteByte('|')
	buf.WriteString(record.CreatedAt.UTC().Format(time.RFC3339Nano))

	return common.CalculateHash(string(key), buf.B), nil
}

// ChainReport is the result of verifying a tenant's audit chain.
type ChainReport struct {
	Valid         bool   `json:"valid"`
	Checked       int    `json:"checked"`
	BrokenEventID string `json:"brokenEventId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type chainVerifier struct {
	key      []byte
	prevHash string
	started  bool
	report   ChainReport
}

func (v *chainVerifier) fail(record *model.AuditLog, reason string) {
	v.report.Valid = false
	v.report.BrokenEventID = record.EventID
	v.report.Reason = reason
}

// check returns false once the chain is broken. The oldest surviving record is the
// anchor, its PrevHash is not checked since its predecessor may have been cleaned up.
func (v *chainVerifier) check(record *model.AuditLog) bool {
	if v.started && record.PrevHash != v.prevHash {
		v.fail(record, "previous hash mismatch")
		return false
	}
	hash, err := computeHash(v.key, record)
	if err != nil || !common.EqualHash(hash, record.Hash) {
		v.fail(record, "record hash mismatch")
		return false
	}
	v.started = true
	v.prevHash = record.Hash
	v.report.Checked++
	return true
}
