package strategy

import "context"

// RegisterDefaults registers every built-in strategy variant, active by
// default (persisted flags still win inside Register).
func RegisterDefaults(ctx context.Context, m *Manager) error {
	for _, s := range []Strategy{
		NewConsensus(),
		NewMomentum(),
		NewMeanReversion(),
		NewPriceConfirmation(),
		NewVolumeSpike(),
		NewRareSurge(),
		NewDivergence(),
		NewReversal(),
	} {
		if err := m.Register(ctx, s, true); err != nil {
			return err
		}
	}
	return nil
}
