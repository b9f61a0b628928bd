package vtab

// Host version thresholds for the optional parts of the protocol. The
// numbers use the host's numeric version encoding (major*1e6 + minor*1e3 +
// patch).
const (
	versionSavepoints          = 3_007_007
	versionConstraintSupport   = 3_007_007
	versionEstimatedRows       = 3_008_002
	versionScanFlags           = 3_009_000
	versionEponymousOnly       = 3_009_000
	versionColumnsUsed         = 3_010_000
	versionNoChange            = 3_022_000
	versionFunctionConstraints = 3_025_000
	versionShadowNames         = 3_026_000
	versionRiskConfig          = 3_031_000
	versionValueLists          = 3_038_000
	versionConstraintRHS       = 3_038_000
	versionDistinctHints       = 3_038_000
)

// Caps describes which optional protocol features the host supports. It is
// resolved once, from the version the host reported at registration time,
// and then consulted instead of the version number everywhere else.
//
// Fields gated by a Caps accessor are entirely absent on older hosts:
// reading them yields an explicit unsupported result and writing them is a
// harmless no-op, so one code path serves every host version.
type Caps struct {
	version int
}

func newCaps(version int) Caps {
	return Caps{version: version}
}

// Version returns the host's numeric version.
func (c Caps) Version() int { return c.version }

// SavepointHooks reports whether the host drives the savepoint, release and
// rollback-to transaction hooks.
func (c Caps) SavepointHooks() bool { return c.version >= versionSavepoints }

// ConstraintSupport reports whether constraint-aware update handling can be
// requested during connect.
func (c Caps) ConstraintSupport() bool { return c.version >= versionConstraintSupport }

// EstimatedRows reports whether plans may carry a row-count estimate.
func (c Caps) EstimatedRows() bool { return c.version >= versionEstimatedRows }

// ScanFlags reports whether plans may carry scan flags.
func (c Caps) ScanFlags() bool { return c.version >= versionScanFlags }

// EponymousOnly reports whether the host can make a module available
// ambiently while refusing explicit creation. Registration of an
// eponymous-only module fails closed without this capability.
func (c Caps) EponymousOnly() bool { return c.version >= versionEponymousOnly }

// ColumnsUsed reports whether planning requests include the bitmap of
// columns the query actually reads.
func (c Caps) ColumnsUsed() bool { return c.version >= versionColumnsUsed }

// NoChange reports whether the host marks unchanged columns during UPDATE
// evaluation, allowing cursors to omit fetching them.
func (c Caps) NoChange() bool { return c.version >= versionNoChange }

// FunctionConstraints reports whether overloaded functions may feed an
// operator tag back into planning.
func (c Caps) FunctionConstraints() bool { return c.version >= versionFunctionConstraints }

// ShadowNames reports whether the host consults the shadow-name guard to
// protect auxiliary objects in defensive mode.
func (c Caps) ShadowNames() bool { return c.version >= versionShadowNames }

// RiskConfig reports whether tables can declare a risk level at connect.
func (c Caps) RiskConfig() bool { return c.version >= versionRiskConfig }

// ValueLists reports whether the host can deliver the whole right-hand side
// of an IN constraint as one batched filter argument.
func (c Caps) ValueLists() bool { return c.version >= versionValueLists }

// ConstraintRHS reports whether literal constraint operands are visible at
// planning time.
func (c Caps) ConstraintRHS() bool { return c.version >= versionConstraintRHS }

// DistinctHints reports whether planning requests distinguish ORDER BY from
// GROUP BY and DISTINCT requirements.
func (c Caps) DistinctHints() bool { return c.version >= versionDistinctHints }
