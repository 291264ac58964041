// Package presenter turns a selected image into Telegram payloads. It performs no I/O.
package presenter

import (
	"fmt"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
	"github.com/Proton-105/gifpick-bot/internal/domain"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
)

// View is a rendered animation with an optional inline keyboard.
type View struct {
	URL     string
	Caption string
	markup  *telebot.ReplyMarkup
}

// Animation returns the payload for Send or Edit.
func (v View) Animation() *telebot.Animation {
	return &telebot.Animation{
		File:    telebot.FromURL(v.URL),
		Caption: v.Caption,
	}
}

// Markup returns the inline keyboard, or nil for views without buttons.
func (v View) Markup() *telebot.ReplyMarkup {
	return v.markup
}

// Presenter renders selector and posted views for one bot command.
type Presenter struct {
	command string
}

// New creates a Presenter; command is shown in the posted attribution line.
func New(command string) *Presenter {
	if command == "" {
		command = "/gif"
	}

	return &Presenter{command: command}
}

// Selecting renders the private selector: the image, its title and Send / Next / Cancel buttons.
func (p *Presenter) Selecting(req *domain.Request, img *tenor.Image) (View, error) {
	url, err := imageURL(img)
	if err != nil {
		return View{}, err
	}

	markup, err := keyboard.Selector(req.Token)
	if err != nil {
		return View{}, fmt.Errorf("build selector keyboard: %w", err)
	}

	return View{
		URL:     url,
		Caption: img.Title(),
		markup:  markup,
	}, nil
}

// Posted renders the message shared with the conversation, attributed to requester.
func (p *Presenter) Posted(req *domain.Request, img *tenor.Image, requester string) (View, error) {
	url, err := imageURL(img)
	if err != nil {
		return View{}, err
	}

	caption := strings.TrimSpace(fmt.Sprintf("%s %s %s", requester, p.command, req.SearchString))

	return View{
		URL:     url,
		Caption: caption,
	}, nil
}

func imageURL(img *tenor.Image) (string, error) {
	if img == nil {
		return "", apperrors.NewDataQualityError("no image to present", nil)
	}

	url, err := img.URL()
	if err != nil {
		return "", apperrors.NewDataQualityError(fmt.Sprintf("image %s cannot be displayed", img.ID()), err)
	}

	return url, nil
}
