package featureflag

type Flag string

const (
	// FlagDisableBalance skips the 2:1 balance after the last level.
	FlagDisableBalance Flag = "DISABLE_BALANCE"

	// FlagDisablePartition keeps leaves on the rank that refined them.
	FlagDisablePartition Flag = "DISABLE_PARTITION"

	// FlagDisableShortCircuit tests every matching pixel of a leaf instead of
	// stopping at the first one.
	FlagDisableShortCircuit Flag = "DISABLE_SHORT_CIRCUIT"

	// FlagSkipAdaptExport writes only the balanced mesh.
	FlagSkipAdaptExport Flag = "SKIP_ADAPT_EXPORT"
)

// Known lists the flags the program reads.
var Known = []Flag{
	FlagDisableBalance,
	FlagDisablePartition,
	FlagDisableShortCircuit,
	FlagSkipAdaptExport,
}
