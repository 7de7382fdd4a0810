package config

import "github.com/CosmosHua/Open3D-ML/internal/model/pointdet"

// PointDet returns the detector configuration, starting from
// pointdet.DefaultConfig and applying every field that is set.
func (c *ModelConfig) PointDet() pointdet.Config {
	cfg := pointdet.DefaultConfig()
	if c.Name != nil {
		cfg.Name = *c.Name
	}
	if c.CkptPath != nil {
		cfg.CkptPath = *c.CkptPath
	}
	if c.CkptDir != nil {
		cfg.CkptDir = *c.CkptDir
	}
	if c.InChannels != nil {
		cfg.InChannels = *c.InChannels
	}
	if c.Hidden != nil {
		cfg.Hidden = append([]int(nil), c.Hidden...)
	}
	if c.Classes != nil {
		anchors := make(map[string][3]float64, len(cfg.Classes))
		for _, cl := range cfg.Classes {
			anchors[cl.Name] = cl.Anchor
		}
		cfg.Classes = make([]pointdet.Class, len(c.Classes))
		for i, name := range c.Classes {
			anchor, ok := anchors[name]
			if !ok {
				anchor = [3]float64{1, 1, 1}
			}
			cfg.Classes[i] = pointdet.Class{Name: name, Anchor: anchor}
		}
	}
	if len(c.PointRange) == 6 {
		copy(cfg.PointRange[:], c.PointRange)
	}
	if c.VoxelSize != nil {
		cfg.VoxelSize = *c.VoxelSize
	}
	if c.MaxPoints != nil {
		cfg.MaxPoints = *c.MaxPoints
	}
	if c.ScoreThreshold != nil {
		cfg.ScoreThreshold = *c.ScoreThreshold
	}
	if c.NMSThreshold != nil {
		cfg.NMSThreshold = *c.NMSThreshold
	}
	if c.TopK != nil {
		cfg.TopK = *c.TopK
	}
	return cfg
}
