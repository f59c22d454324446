package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PacingChanged is set when any playback setting of the interaction
	// section changed. New values apply to characters added afterwards.
	PacingChanged bool

	CharactersChanged bool
	CharacterChanges  []CharacterDiff
}

// CharacterDiff describes what changed for a single character.
type CharacterDiff struct {
	BrainName        string
	GivenName        string
	GivenNameChanged bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed. Characters
// are matched by brain name; changes are reported in the order of new,
// with removals last.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !samePacing(old.Interaction.WithDefaults(), new.Interaction.WithDefaults()) {
		d.PacingChanged = true
	}

	oldChars := make(map[string]CharacterConfig, len(old.Characters))
	for _, c := range old.Characters {
		oldChars[c.BrainName] = c
	}
	newChars := make(map[string]struct{}, len(new.Characters))
	for _, c := range new.Characters {
		newChars[c.BrainName] = struct{}{}
		prev, ok := oldChars[c.BrainName]
		switch {
		case !ok:
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{
				BrainName: c.BrainName,
				GivenName: c.GivenName,
				Added:     true,
			})
		case prev.GivenName != c.GivenName:
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{
				BrainName:        c.BrainName,
				GivenName:        c.GivenName,
				GivenNameChanged: true,
			})
		}
	}
	for _, c := range old.Characters {
		if _, ok := newChars[c.BrainName]; !ok {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{
				BrainName: c.BrainName,
				GivenName: c.GivenName,
				Removed:   true,
			})
		}
	}
	d.CharactersChanged = len(d.CharacterChanges) > 0
	return d
}

// samePacing compares the playback settings of two defaulted sections.
func samePacing(a, b InteractionConfig) bool {
	return *a.AutoProceed == *b.AutoProceed &&
		*a.TextSpeedMultiplier == *b.TextSpeedMultiplier &&
		a.CancelDelay == b.CancelDelay &&
		a.MaxItemCount == b.MaxItemCount
}
