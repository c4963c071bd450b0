package workflow

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/roomapi"
)

// RoomOptions are the conference options of the room edit dialog. Zero
// fields keep the room's current value.
type RoomOptions struct {
	Layout            roomapi.Layout // Default: roomapi.Auto
	MaxVideoConsumers int            // Default: roomapi.DefaultMaxVideoConsumers
	AdminViewOnly     bool
	ShowMediaSettings bool
	Locked            bool
}

// CreateRoom adds a conference room from the dashboard. password is only
// entered for the password view policy. Use ResolveRoomID to learn the id
// of the new room.
func (c *Client) CreateRoom(ctx context.Context, title string, policy roomapi.ViewPolicy, password string) error {
	c.Click(ctx, selAddMenu, c.cfg.Wait)
	c.Click(ctx, selAddRoom, c.cfg.Wait)
	if err := c.fill(ctx, selCreateTitle, title); err != nil {
		return err
	}
	c.Click(ctx, selCreatePolicy, c.cfg.Wait)
	c.Click(ctx, "div.cdk-overlay-pane "+optionSelector(string(policy)), c.cfg.Wait)
	if policy == roomapi.Password {
		if err := c.fill(ctx, selCreatePass, password); err != nil {
			return err
		}
	}
	c.Click(ctx, selCreateSubmit, c.cfg.Wait)
	c.settle(ctx, 2)
	c.log.V(1).Info("room created", "title", title, "policy", policy)
	return nil
}

// findRoom returns the first dashboard row whose title is exactly name.
func (c *Client) findRoom(ctx context.Context, name string) (browser.Element, bool, error) {
	if err := c.Dashboard(ctx); err != nil {
		return nil, false, err
	}
	for _, row := range c.FindAll(ctx, selRoomRows) {
		title, ok := c.FindOneWithin(ctx, row, selRowTitle)
		if ok && c.Text(ctx, title) == name {
			return row, true, nil
		}
	}
	c.log.Error(nil, "room not found", "room", name)
	return nil, false, nil
}

// ResolveRoomID opens the room titled name from the dashboard, enters
// password if given, and returns the id from the room URL. ok is false if
// no room has that title.
func (c *Client) ResolveRoomID(ctx context.Context, name, password string) (id string, ok bool, err error) {
	row, ok, err := c.findRoom(ctx, name)
	if !ok || err != nil {
		return "", false, err
	}
	link, err := c.requireWithin(ctx, row, selRowLink)
	if err != nil {
		return "", false, err
	}
	c.ClickElement(ctx, link)
	if password != "" {
		if err := c.EnterRoomPassword(ctx, password); err != nil {
			return "", false, err
		}
	}
	c.settle(ctx, 2)

	current, _ := c.CurrentURL(ctx)
	id, ok = RoomIDFromURL(current)
	if !ok {
		c.log.Error(nil, "no room id in url", "url", current)
		return "", false, nil
	}
	return id, true, nil
}

// RoomIDFromURL returns the path segment following the last "room" segment
// of u.
func RoomIDFromURL(u string) (string, bool) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", false
	}
	segs := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segs) - 2; i >= 0; i-- {
		if segs[i] == "room" && segs[i+1] != "" {
			return segs[i+1], true
		}
	}
	return "", false
}

// openRoomEditor opens the edit dialog of the room titled name.
func (c *Client) openRoomEditor(ctx context.Context, name string) (bool, error) {
	row, ok, err := c.findRoom(ctx, name)
	if !ok || err != nil {
		return false, err
	}
	edit, err := c.requireWithin(ctx, row, selRowEdit)
	if err != nil {
		return false, err
	}
	c.ClickElement(ctx, edit)
	c.settle(ctx, 1)
	return true, nil
}

// selectOption opens the select matched by selector and picks value.
func (c *Client) selectOption(ctx context.Context, selector, value string) {
	c.Click(ctx, selector, c.cfg.Wait)
	c.Click(ctx, optionSelector(value), c.cfg.Wait)
}

// ChangeVideoPolicy sets the view and publish policy of the room titled
// name. Only policies that differ from unlisted and guest are touched.
func (c *Client) ChangeVideoPolicy(ctx context.Context, name string, view roomapi.ViewPolicy, publish roomapi.PublishPolicy) error {
	ok, err := c.openRoomEditor(ctx, name)
	if !ok || err != nil {
		return err
	}
	if view != "" && view != roomapi.Unlisted {
		c.selectOption(ctx, selEditViewPolicy, string(view))
	}
	if publish != "" && publish != roomapi.Guest {
		c.Click(ctx, selEditOptionsTab, c.cfg.Wait)
		c.selectOption(ctx, selEditPublishPolicy, string(publish))
	}
	c.Click(ctx, selEditSubmit, c.cfg.Wait)
	c.settle(ctx, 1)
	return nil
}

// ChangeRoomOptions applies the non-default fields of opts to the room
// titled name.
func (c *Client) ChangeRoomOptions(ctx context.Context, name string, opts RoomOptions) error {
	ok, err := c.openRoomEditor(ctx, name)
	if !ok || err != nil {
		return err
	}
	c.Click(ctx, selEditOptionsTab, c.cfg.Wait)

	if opts.Layout == roomapi.Full {
		c.selectOption(ctx, selEditLayout, string(roomapi.Full))
	}
	if opts.MaxVideoConsumers > 0 && opts.MaxVideoConsumers != roomapi.DefaultMaxVideoConsumers {
		if err := c.fill(ctx, selEditMaxConsumers, strconv.Itoa(opts.MaxVideoConsumers)); err != nil {
			return err
		}
	}
	for _, sw := range []struct {
		on       bool
		selector string
	}{
		{opts.AdminViewOnly, selEditAdminViewOnly},
		{opts.ShowMediaSettings, selEditShowSettings},
		{opts.Locked, selEditLocked},
	} {
		if sw.on {
			c.Click(ctx, sw.selector, c.cfg.Wait)
			c.Click(ctx, selOptionTrue, c.cfg.Wait)
		}
	}
	c.Click(ctx, selEditSubmit, c.cfg.Wait)
	c.settle(ctx, 1)
	return nil
}

// CheckRoomLocked checks that the application refused entry because the
// room is locked.
func (c *Client) CheckRoomLocked(ctx context.Context) error {
	el, err := c.require(ctx, selSnackBar)
	if err != nil {
		return err
	}
	return expectEqual("locked notice", textRoomLocked, c.Text(ctx, el))
}

// EnterRoomPassword submits the password of a password-protected room.
func (c *Client) EnterRoomPassword(ctx context.Context, password string) error {
	if err := c.fill(ctx, selRoomPassword, password); err != nil {
		return err
	}
	c.Click(ctx, selRoomPasswordSubmit, c.cfg.Wait)
	c.settle(ctx, 1)
	return nil
}

// EnterDisplayName submits the name shown to other participants.
func (c *Client) EnterDisplayName(ctx context.Context, name string) error {
	if err := c.fill(ctx, selDisplayName, name); err != nil {
		return err
	}
	c.Click(ctx, selDisplayNameSubmit, c.cfg.Wait)
	c.settle(ctx, 2)
	return nil
}
