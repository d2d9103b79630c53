package server

import (
	"log"

	"github.com/orneryd/conduit/pkg/storage"
)

// enqueueAudit hands ev to the audit worker. When the queue is full or the
// server is stopping the event is dropped and counted.
func (s *Server) enqueueAudit(ev *storage.AuditEvent) {
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()

	if s.closed.Load() {
		s.auditDropped.Add(1)
		return
	}
	select {
	case s.auditCh <- ev:
	default:
		s.auditDropped.Add(1)
	}
}

func (s *Server) runAuditWorker() {
	defer close(s.auditDone)
	for ev := range s.auditCh {
		if err := s.db.AddAuditEvent(ev); err != nil {
			log.Printf("[AUDIT] failed to record %s: %v", ev.Route, err)
		}
	}
}
