package workflow

import (
	"context"

	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/mediastate"
)

// PublishOptions configure PublishAudioVideo.
type PublishOptions struct {
	// ShowSettings fills in the settings dialog the room shows before
	// publishing.
	ShowSettings bool
	VideoDevice  string
	// VideoQuality is one of CameraQualities; anything else selects
	// CameraFallbackQuality. Zero keeps the current quality.
	VideoQuality int
	AudioDevice  string
	// DisableAudio publishes with the microphone switched off.
	DisableAudio bool
}

// TrackAction is what VideoSettings does with the camera or the screen
// share. The zero value leaves the track alone.
type TrackAction struct {
	Pause  bool
	Resume bool
	Stop   bool
	// Device and Quality open the track's settings dialog. Device is only
	// offered for the camera.
	Device  string
	Quality int
}

func (a TrackAction) settings() bool { return a.Device != "" || a.Quality != 0 }

// AudioAction is what AudioSettings does with the microphone.
type AudioAction struct {
	Pause  bool
	Resume bool
	Stop   bool
}

// AudioOptions open the microphone settings dialog when non-zero.
type AudioOptions struct {
	Device string
	Enable AudioToggle
}

func (c *Client) controlBar(ctx context.Context) []browser.Element {
	return c.FindAll(ctx, selControlBar)
}

func (c *Client) expectIdleBar(ctx context.Context) error {
	return expectButtons("control bar", c.titles(ctx, c.controlBar(ctx)), 4,
		titlePublishAV, titlePublishAudio, titlePublishScreen)
}

// PublishAudioVideo publishes camera and microphone from the control bar.
// It fails if the bar is not in its idle four-button shape, so publishing
// twice without stopping in between is reported.
func (c *Client) PublishAudioVideo(ctx context.Context, opts PublishOptions) error {
	bar := c.controlBar(ctx)
	titles := c.titles(ctx, bar)
	if err := expectButtons("control bar", titles, 4, titlePublishAV, titlePublishAudio, titlePublishScreen); err != nil {
		return err
	}
	c.ClickElement(ctx, bar[0])
	c.settle(ctx, 2)
	c.media.Publish(mediastate.Video)
	c.media.Publish(mediastate.Audio)

	if opts.ShowSettings {
		audio := AudioOn
		if opts.DisableAudio {
			audio = AudioOff
		}
		err := c.mediaDialog(ctx, dialogOptions{
			videoDevice:  opts.VideoDevice,
			videoQuality: opts.VideoQuality,
			audioDevice:  opts.AudioDevice,
			audio:        audio,
		})
		if err != nil {
			return err
		}
	}

	if err := c.CheckParticipants(ctx, ParticipantCheck{}); err != nil {
		return err
	}
	return expectButtons("control bar", c.titles(ctx, c.controlBar(ctx)), 3, titlePublishScreen, titleStopAll)
}

// CannotPublish checks that the control bar offers no publish buttons.
func (c *Client) CannotPublish(ctx context.Context) error {
	return expectButtons("control bar", c.titles(ctx, c.controlBar(ctx)), 2, titleFullscreen)
}

// trackMenu is one entry of an open media menu.
type trackMenu struct {
	label   browser.Element
	buttons []browser.Element
}

// checkMenuButtons checks the pause-or-resume, settings and stop actions.
func checkMenuButtons(menu string, titles []string) error {
	if err := expectEqual(menu+" button count", 3, len(titles)); err != nil {
		return err
	}
	if err := expectEqual(menu+" button 1 title", titleSettings, titles[1]); err != nil {
		return err
	}
	return expectEqual(menu+" button 2 title", titleStop, titles[2])
}

// openVideoMenu opens the camera menu and returns the entries of the
// active camera and screen share. An entry is nil for an inactive track.
func (c *Client) openVideoMenu(ctx context.Context) (video, screen *trackMenu, err error) {
	btn, err := c.require(ctx, selVideoMenu)
	if err != nil {
		return nil, nil, err
	}
	c.ClickElement(ctx, btn)
	c.settle(ctx, 2)
	c.FindOne(ctx, selMenuItems, c.cfg.Wait)
	items := c.FindAll(ctx, selMenuItems)

	snap := c.media.Snapshot()
	videoOn := snap.Video != mediastate.Stop
	screenOn := snap.Screen != mediastate.Stop

	entry := func(item browser.Element, buttons []browser.Element, name string) (*trackMenu, error) {
		if err := checkMenuButtons(name, c.titles(ctx, buttons)); err != nil {
			return nil, err
		}
		label, _ := c.FindOneWithin(ctx, item, selMenuItemLabel)
		return &trackMenu{label: label, buttons: buttons}, nil
	}

	switch {
	case videoOn && screenOn:
		if err := expectEqual("video menu items", 2, len(items)); err != nil {
			return nil, nil, err
		}
		if video, err = entry(items[0], c.FindAllWithin(ctx, items[0], "button"), "camera menu"); err != nil {
			return nil, nil, err
		}
		if screen, err = entry(items[1], c.FindAllWithin(ctx, items[1], "button"), "screen menu"); err != nil {
			return nil, nil, err
		}
	case videoOn, screenOn:
		if err := expectEqual("video menu items", 1, len(items)); err != nil {
			return nil, nil, err
		}
		m, err := entry(items[0], c.FindAll(ctx, selMenuButtons), "video menu")
		if err != nil {
			return nil, nil, err
		}
		if videoOn {
			video = m
		} else {
			screen = m
		}
	}
	return video, screen, nil
}

// VideoSettings applies video to the camera and screen to the screen
// share through the camera menu. Pause and resume only happen when the
// track is in the matching state; otherwise the request is logged as an
// invalid action.
func (c *Client) VideoSettings(ctx context.Context, video, screen TrackAction) error {
	vm, sm, err := c.openVideoMenu(ctx)
	if err != nil {
		return err
	}
	open := true

	if video != (TrackAction{}) {
		if open, err = c.applyTrack(ctx, mediastate.Video, vm, video); err != nil {
			return err
		}
	}
	if screen != (TrackAction{}) {
		if !open {
			if vm, sm, err = c.openVideoMenu(ctx); err != nil {
				return err
			}
		}
		if open, err = c.applyTrack(ctx, mediastate.Screen, sm, screen); err != nil {
			return err
		}
	}
	if open {
		c.dismissMenu(ctx, vm, sm)
	}

	snap := c.media.Snapshot()
	if snap.Video == mediastate.Play || snap.Screen == mediastate.Play {
		return c.CheckParticipants(ctx, ParticipantCheck{})
	}
	return nil
}

// applyTrack runs a on the menu entry of track and reports whether the
// menu is still open afterwards.
func (c *Client) applyTrack(ctx context.Context, track mediastate.Track, m *trackMenu, a TrackAction) (bool, error) {
	if m == nil {
		c.log.Info("invalid action", "track", track, "state", c.media.Get(track), "reason", "track not published")
		return true, nil
	}
	if a.Pause {
		if err := c.toggle(ctx, track, m, titlePause, titleResume); err != nil {
			return false, err
		}
	}
	if a.Resume {
		if err := c.toggle(ctx, track, m, titleResume, titlePause); err != nil {
			return false, err
		}
	}

	open := true
	switch {
	case a.Stop:
		c.ClickElement(ctx, m.buttons[2])
		c.media.Stop(track)
		open = false
	case a.Pause || a.Resume:
		c.ClickElement(ctx, m.label)
		open = false
	}
	c.settle(ctx, 2)

	if !a.settings() {
		return open, nil
	}
	if !open {
		c.log.Info("invalid action", "track", track, "reason", "settings requested after the menu closed")
		return false, nil
	}
	c.ClickElement(ctx, m.buttons[1])
	c.settle(ctx, 2)
	if track == mediastate.Screen {
		if err := c.screenDialog(ctx, a.Quality); err != nil {
			return false, err
		}
	} else {
		if err := c.mediaDialog(ctx, dialogOptions{videoDevice: a.Device, videoQuality: a.Quality}); err != nil {
			return false, err
		}
	}
	if !c.media.Resume(track) {
		c.media.Publish(track)
	}
	return false, nil
}

// toggle clicks the pause/resume button of m when it is titled from and
// the track state allows it, and checks the title flips to to.
func (c *Client) toggle(ctx context.Context, track mediastate.Track, m *trackMenu, from, to string) error {
	btn := m.buttons[0]
	legal := c.media.Can(track, mediastate.Play)
	if from == titleResume {
		legal = c.media.Can(track, mediastate.Pause)
	}
	if !legal || c.Attribute(ctx, btn, "title") != from {
		c.log.Info("invalid action", "track", track, "state", c.media.Get(track), "action", from)
		return nil
	}
	c.ClickElement(ctx, btn)
	c.settle(ctx, 2)
	if err := expectEqual(track.String()+" toggle title", to, c.Attribute(ctx, btn, "title")); err != nil {
		return err
	}
	if from == titlePause {
		c.media.Pause(track)
	} else {
		c.media.Resume(track)
	}
	c.log.V(1).Info("track toggled", "track", track, "state", c.media.Get(track))
	return nil
}

// dismissMenu closes an open menu by clicking the label of its first
// entry.
func (c *Client) dismissMenu(ctx context.Context, menus ...*trackMenu) {
	for _, m := range menus {
		if m != nil && m.label != nil {
			c.ClickElement(ctx, m.label)
			c.settle(ctx, 1)
			return
		}
	}
}

// AudioSettings applies a to the microphone through the audio menu, then
// opens the audio settings dialog when opts is non-zero.
func (c *Client) AudioSettings(ctx context.Context, a AudioAction, opts AudioOptions) error {
	btn, err := c.require(ctx, selAudioMenu)
	if err != nil {
		return err
	}
	c.ClickElement(ctx, btn)
	label, _ := c.FindOne(ctx, selAudioMenuLabel, c.cfg.Wait)
	buttons := c.FindAll(ctx, selMenuButtons)
	if err := checkMenuButtons("audio menu", c.titles(ctx, buttons)); err != nil {
		return err
	}
	m := &trackMenu{label: label, buttons: buttons}
	state := c.media.Get(mediastate.Audio)

	if a.Pause && state != mediastate.Pause {
		if err := c.toggle(ctx, mediastate.Audio, m, titlePause, titleResume); err != nil {
			return err
		}
	}
	if a.Resume && state == mediastate.Pause {
		if err := c.toggle(ctx, mediastate.Audio, m, titleResume, titlePause); err != nil {
			return err
		}
	}

	open := true
	switch {
	case a.Stop && c.media.Get(mediastate.Audio) != mediastate.Stop:
		c.ClickElement(ctx, buttons[2])
		c.settle(ctx, 2)
		c.media.Stop(mediastate.Audio)
		open = false
	case a.Pause || a.Resume || a.Stop:
		c.ClickElement(ctx, label)
		c.settle(ctx, 2)
		open = false
	}

	if opts == (AudioOptions{}) {
		if open {
			c.dismissMenu(ctx, m)
		}
		return nil
	}
	if !open {
		// The dialog is reached through the menu.
		c.ClickElement(ctx, btn)
		c.FindOne(ctx, selAudioMenuLabel, c.cfg.Wait)
		buttons = c.FindAll(ctx, selMenuButtons)
		if err := checkMenuButtons("audio menu", c.titles(ctx, buttons)); err != nil {
			return err
		}
	}
	c.ClickElement(ctx, buttons[1])
	c.settle(ctx, 2)
	if err := c.mediaDialog(ctx, dialogOptions{audioDevice: opts.Device, audio: opts.Enable}); err != nil {
		return err
	}
	switch opts.Enable {
	case AudioOn:
		c.setAudioEnabled(true)
	case AudioOff:
		c.setAudioEnabled(false)
	}
	return nil
}

// StopAudioVideo presses the stop-all button, checks the control bar is
// back to its idle shape and records every track as stopped.
func (c *Client) StopAudioVideo(ctx context.Context) error {
	if btn, ok := c.byTitle(ctx, c.controlBar(ctx), titleStopAll); ok {
		c.ClickElement(ctx, btn)
	} else {
		c.log.Info("stop all button not found")
	}
	c.settle(ctx, 1)
	if err := c.expectIdleBar(ctx); err != nil {
		return err
	}
	c.media.StopAll()
	return nil
}

// ShareScreen publishes a screen share unless one is already playing.
func (c *Client) ShareScreen(ctx context.Context) error {
	if c.media.Get(mediastate.Screen) == mediastate.Play {
		c.log.Info("screen already shared")
		return nil
	}
	if btn, ok := c.byTitle(ctx, c.controlBar(ctx), titlePublishScreen); ok {
		c.ClickElement(ctx, btn)
		c.settle(ctx, 2)
	} else {
		c.log.Info("share screen button not found")
	}
	if !c.media.Resume(mediastate.Screen) {
		c.media.Publish(mediastate.Screen)
	}
	return c.CheckParticipants(ctx, ParticipantCheck{})
}

// ShowMoreOptions opens the overflow menu and locks or unlocks the room.
func (c *Client) ShowMoreOptions(ctx context.Context, lock bool) error {
	if !c.Click(ctx, selMoreOptions, c.cfg.Wait) {
		c.log.Info("more options button not found")
	}
	c.FindOne(ctx, selMenuButtons, c.cfg.Wait)
	buttons := c.FindAll(ctx, selMenuButtons)
	if err := expectEqual("more options button count", 6, len(buttons)); err != nil {
		return err
	}

	title := titleUnlockRoom
	if lock {
		title = titleLockRoom
	}
	if btn, ok := c.byTitle(ctx, buttons, title); ok {
		c.ClickElement(ctx, btn)
		c.settle(ctx, 2)
	} else {
		c.log.Info("menu button not found", "title", title)
	}
	if !lock {
		return nil
	}
	banner, err := c.require(ctx, selLockedBanner)
	if err != nil {
		return err
	}
	return expectEqual("locked banner", textRoomLocked, c.Text(ctx, banner))
}
