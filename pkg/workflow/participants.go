package workflow

import (
	"context"

	"github.com/thesyncim/confdrive/pkg/mediastate"
)

// ParticipantCheck says what CheckParticipants asserts. Zero fields are
// not checked.
type ParticipantCheck struct {
	// Local requires one or two local videos (camera and/or screen).
	// Local videos are also looked at whenever the camera or the screen
	// share is playing, but then only logged.
	Local bool
	// Remote is the exact number of remote participants in the grid.
	Remote int
	// Visible is the number of remote tiles that must be shown; every
	// other tile must be hidden.
	Visible int
}

// CheckParticipants inspects the local and remote participant grids.
func (c *Client) CheckParticipants(ctx context.Context, pc ParticipantCheck) error {
	snap := c.media.Snapshot()
	if pc.Local || snap.Video == mediastate.Play || snap.Screen == mediastate.Play {
		if err := c.checkLocal(ctx, pc.Local, snap); err != nil {
			return err
		}
	}
	if pc.Remote <= 0 && pc.Visible <= 0 {
		return nil
	}

	grid, err := c.require(ctx, selRemoteGrid)
	if err != nil {
		return err
	}
	if pc.Remote > 0 {
		peers := c.FindAllWithin(ctx, grid, selRemotePeers)
		if err := expectEqual("remote participants", pc.Remote, len(peers)); err != nil {
			return err
		}
	}
	if pc.Visible > 0 {
		tiles := c.FindAllWithin(ctx, grid, selRemoteTiles)
		hidden := 0
		for _, tile := range tiles {
			if c.Attribute(ctx, tile, attrHidden) == "true" {
				hidden++
			}
		}
		if err := expectEqual("hidden remote tiles", len(tiles)-pc.Visible, hidden); err != nil {
			return err
		}
		if err := expectEqual("visible remote tiles", pc.Visible, len(tiles)-hidden); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkLocal(ctx context.Context, required bool, snap mediastate.Snapshot) error {
	n := 0
	if grid, ok := c.FindOne(ctx, selLocalGrid, c.cfg.Wait); ok {
		n = len(c.FindAllWithin(ctx, grid, "video"))
	}
	switch {
	case n == 2:
		c.log.Info("video and screen share published")
	case n == 1 && snap.Video == mediastate.Play:
		c.log.Info("video published")
	case n == 1:
		c.log.Info("screen share published")
	case required:
		return &ContractError{Check: "local videos", Want: "1 or 2", Got: n}
	default:
		c.log.Info("no local video", "video", snap.Video, "screen", snap.Screen)
	}
	return nil
}
