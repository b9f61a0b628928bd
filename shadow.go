package vtab

// IsShadowName reports whether a table named "<name>_<suffix>" belongs to a
// virtual table created through the named module and must be protected from
// untrusted schema changes. It answers false when the host predates shadow
// name checks or the module is unknown.
func (c *Conn) IsShadowName(module, suffix string) bool {
	if !c.caps.ShadowNames() {
		return false
	}
	reg, ok := c.regs[module]
	if !ok {
		return false
	}
	for _, s := range reg.mod.shadowNames {
		if s == suffix {
			return true
		}
	}
	return false
}
