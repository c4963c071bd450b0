package workflow

import (
	"context"
	"slices"

	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/mediastate"
)

// Video qualities offered by the settings dialogs, as vertical
// resolution.
var (
	CameraQualities = []int{360, 540, 720}
	ScreenQualities = []int{360, 540, 720, 1080}
)

// Quality used when a requested quality is not offered.
const (
	CameraFallbackQuality = 540
	ScreenFallbackQuality = 720
)

// AudioToggle is the requested position of the dialog's audio switch.
type AudioToggle int

const (
	AudioUnchanged AudioToggle = iota
	AudioOn
	AudioOff
)

type dialogOptions struct {
	videoDevice  string
	videoQuality int
	audioDevice  string
	audio        AudioToggle
}

// mediaDialog fills in the camera/microphone settings dialog and submits
// it. The dialog title decides which sections are present.
func (c *Client) mediaDialog(ctx context.Context, o dialogOptions) error {
	dialog, err := c.require(ctx, selDialog)
	if err != nil {
		return err
	}
	header, err := c.require(ctx, selDialogTitle)
	if err != nil {
		return err
	}
	title := c.Attribute(ctx, header, attrDialogTitle)
	c.log.V(1).Info("settings dialog", "title", title)

	var video, audio browser.Element
	switch title {
	case dialogPublish:
		if video, err = c.requireWithin(ctx, dialog, selDialogFirst); err != nil {
			return err
		}
		if audio, err = c.requireWithin(ctx, dialog, selDialogSecond); err != nil {
			return err
		}
	case dialogVideo:
		if video, err = c.requireWithin(ctx, dialog, selDialogOnly); err != nil {
			return err
		}
	case dialogAudio:
		if audio, err = c.requireWithin(ctx, dialog, selDialogOnly); err != nil {
			return err
		}
	default:
		return &ContractError{Check: "settings dialog title", Want: "media settings", Got: title}
	}

	if video != nil {
		if err := c.videoSection(ctx, video, o); err != nil {
			return err
		}
	}
	if audio != nil {
		if err := c.audioSection(ctx, audio, o); err != nil {
			return err
		}
	}
	return c.submitDialog(ctx, dialog, 2)
}

func (c *Client) videoSection(ctx context.Context, section browser.Element, o dialogOptions) error {
	if err := c.sectionTitle(ctx, section, "Video"); err != nil {
		return err
	}
	body, err := c.requireWithin(ctx, section, selSectionBody)
	if err != nil {
		return err
	}
	if _, err := c.requireWithin(ctx, body, selVideoPreview); err != nil {
		return err
	}
	fields := c.FindAllWithin(ctx, body, selVideoFields)
	if err := expectEqual("video settings fields", 2, len(fields)); err != nil {
		return err
	}
	if o.videoDevice != "" {
		c.pickDevice(ctx, fields[0], o.videoDevice)
	}
	if o.videoQuality != 0 {
		return c.pickQuality(ctx, fields[1], o.videoQuality, CameraQualities, CameraFallbackQuality)
	}
	return nil
}

func (c *Client) audioSection(ctx context.Context, section browser.Element, o dialogOptions) error {
	if err := c.sectionTitle(ctx, section, "Audio"); err != nil {
		return err
	}
	field, err := c.requireWithin(ctx, section, selAudioField)
	if err != nil {
		return err
	}
	update, err := c.requireWithin(ctx, section, selAudioUpdate)
	if err != nil {
		return err
	}
	if err := expectEqual("update devices button", titleUpdateDevices, c.Attribute(ctx, update, "title")); err != nil {
		return err
	}
	toggle, err := c.requireWithin(ctx, section, selAudioToggle)
	if err != nil {
		return err
	}
	if o.audioDevice != "" {
		c.pickDevice(ctx, field, o.audioDevice)
	}

	var want string
	switch o.audio {
	case AudioOn:
		want = "true"
	case AudioOff:
		want = "false"
	default:
		return nil
	}
	if c.Attribute(ctx, toggle, attrToggleChecked) != want {
		c.ClickElement(ctx, toggle)
		c.setAudioEnabled(o.audio == AudioOn)
	}
	return expectEqual("audio switch", want, c.Attribute(ctx, toggle, attrToggleChecked))
}

// setAudioEnabled records the audio switch position: on publishes or
// resumes, off pauses.
func (c *Client) setAudioEnabled(on bool) {
	var ok bool
	if on {
		ok = c.media.Resume(mediastate.Audio) || c.media.Publish(mediastate.Audio)
	} else {
		ok = c.media.Pause(mediastate.Audio)
	}
	if !ok && c.media.Get(mediastate.Audio) != enabledState(on) {
		c.log.Info("invalid action", "track", mediastate.Audio, "state", c.media.Get(mediastate.Audio), "enable", on)
	}
}

func enabledState(on bool) mediastate.State {
	if on {
		return mediastate.Play
	}
	return mediastate.Pause
}

// screenDialog sets the screen share quality and submits the dialog.
func (c *Client) screenDialog(ctx context.Context, quality int) error {
	dialog, err := c.require(ctx, selDialog)
	if err != nil {
		return err
	}
	header, err := c.require(ctx, selDialogTitle)
	if err != nil {
		return err
	}
	if err := expectEqual("settings dialog title", dialogScreen, c.Attribute(ctx, header, attrDialogTitle)); err != nil {
		return err
	}
	section, err := c.requireWithin(ctx, dialog, selDialogOnly)
	if err != nil {
		return err
	}
	if err := c.sectionTitle(ctx, section, "Video"); err != nil {
		return err
	}
	if quality != 0 {
		if err := c.pickQuality(ctx, section, quality, ScreenQualities, ScreenFallbackQuality); err != nil {
			return err
		}
	}
	return c.submitDialog(ctx, dialog, 4)
}

func (c *Client) sectionTitle(ctx context.Context, section browser.Element, want string) error {
	el, err := c.requireWithin(ctx, section, selSectionTitle)
	if err != nil {
		return err
	}
	return expectEqual("dialog section", want, c.Text(ctx, el))
}

func (c *Client) submitDialog(ctx context.Context, dialog browser.Element, settle int) error {
	submit, err := c.requireWithin(ctx, dialog, selDialogSubmit)
	if err != nil {
		return err
	}
	c.ClickElement(ctx, submit)
	c.settle(ctx, settle)
	return nil
}

// pickDevice selects the device labelled name from the select inside
// field. A device that is not offered is logged and skipped.
func (c *Client) pickDevice(ctx context.Context, field browser.Element, name string) bool {
	sel, ok := c.FindOneWithin(ctx, field, selSelect)
	if !ok {
		return false
	}
	c.ClickElement(ctx, sel)
	c.settle(ctx, 1)
	for _, opt := range c.FindAll(ctx, selOverlayDevices) {
		if c.Text(ctx, opt) == name {
			c.ClickElement(ctx, opt)
			c.settle(ctx, 1)
			return true
		}
	}
	c.log.Info("device not found", "device", name)
	return false
}

// pickQuality selects quality from the select inside container. The
// overlay must offer exactly the given levels; an unsupported quality
// selects fallback instead.
func (c *Client) pickQuality(ctx context.Context, container browser.Element, quality int, levels []int, fallback int) error {
	sel, err := c.requireWithin(ctx, container, selSelect)
	if err != nil {
		return err
	}
	c.ClickElement(ctx, sel)
	c.FindOne(ctx, selOverlayOptions, c.cfg.Wait)
	opts := c.FindAll(ctx, selOverlayOptions)
	if err := expectEqual("quality options", len(levels), len(opts)); err != nil {
		return err
	}
	i := slices.Index(levels, quality)
	if i < 0 {
		c.log.Info("unsupported video quality, using fallback", "quality", quality, "fallback", fallback)
		i = slices.Index(levels, fallback)
	}
	c.ClickElement(ctx, opts[i])
	c.settle(ctx, 2)

	if value, ok := c.FindOneWithin(ctx, sel, selSelectValue); ok {
		c.log.V(1).Info("quality set", "quality", c.Text(ctx, value))
	}
	return nil
}
