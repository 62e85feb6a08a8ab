package game

// RegisterIdentity links participant to an external uniqueness handle. A zero handle
// clears the link. Admin only.
func (e *Engine) RegisterIdentity(caller, participant ParticipantID, handle Handle) error {
	const op = "register_identity"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	if participant.IsZero() {
		return fail(op, ErrZeroTarget)
	}
	e.identities.Register(participant, handle)
	e.emit(AuditEntry{
		Tick: e.now(), Actor: caller, Action: AuditRegisterIdentity, To: participant,
		Details: map[string]any{"handle": uint64(handle)},
	})
	return nil
}

// SetActive pauses or resumes play. While paused only admin operations succeed.
func (e *Engine) SetActive(caller ParticipantID, active bool) error {
	const op = "set_active"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	e.state.Active = active
	e.emit(AuditEntry{
		Tick: e.now(), Actor: caller, Action: AuditSetActive,
		Details: map[string]any{"active": active},
	})
	return nil
}
