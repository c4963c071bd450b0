package workflow

import (
	"context"
)

// LoginURL is the login route of the deployment.
func (c *Client) LoginURL() string { return c.cfg.BaseURL + "/login" }

// DashboardURL is the room list route of the deployment.
func (c *Client) DashboardURL() string { return c.cfg.BaseURL + "/dashboard/rooms" }

// RoomURL is the route of room id.
func (c *Client) RoomURL(id string) string { return c.cfg.BaseURL + "/room/" + id }

// Login signs in through the navigation menu.
func (c *Client) Login(ctx context.Context, email, password string) error {
	menu, err := c.require(ctx, selMenuButton)
	if err != nil {
		return err
	}
	if err := expectEqual("menu button", "Menu", c.Attribute(ctx, menu, attrMenuMessage)); err != nil {
		return err
	}
	c.ClickElement(ctx, menu)
	c.settle(ctx, 1)

	c.Click(ctx, selLoginLink, c.cfg.Wait)
	url, _ := c.CurrentURL(ctx)
	if err := expectEqual("login url", c.LoginURL(), url); err != nil {
		return err
	}

	if err := c.fill(ctx, selEmail, email); err != nil {
		return err
	}
	if err := c.fill(ctx, selPassword, password); err != nil {
		return err
	}
	c.Click(ctx, selLoginSubmit, c.cfg.Wait)
	c.log.V(1).Info("logged in", "email", email)
	return nil
}

// GetRoom loads url and checks that an application page was served.
func (c *Client) GetRoom(ctx context.Context, url string) error {
	if err := c.Navigate(ctx, url); err != nil {
		return err
	}
	if err := c.checkTitle(ctx); err != nil {
		return err
	}
	c.settle(ctx, 2)
	return nil
}

// Dashboard shows the room list unless it is already shown.
func (c *Client) Dashboard(ctx context.Context) error {
	if url, _ := c.CurrentURL(ctx); url == c.DashboardURL() {
		return nil
	}
	if err := c.Navigate(ctx, c.DashboardURL()); err != nil {
		return err
	}
	c.settle(ctx, 2)
	return nil
}
