package mandate

// SigningContent returns a copy of the mandate with its signature
// stripped. Signatures are computed over this content, never over
// themselves.

func (m IntentMandate) SigningContent() IntentMandate {
	m.Signature = nil
	return m
}

func (m CartMandate) SigningContent() CartMandate {
	m.Signature = nil
	return m
}

func (m PaymentMandate) SigningContent() PaymentMandate {
	m.Signature = nil
	return m
}
