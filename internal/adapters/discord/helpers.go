package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// opciones del subcomando (o del comando si no hay subcomando)
func cmdOptions(ic *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	opts := ic.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}

func findOpt(ic *discordgo.InteractionCreate, name string, typ discordgo.ApplicationCommandOptionType) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range cmdOptions(ic) {
		if o.Name == name && o.Type == typ {
			return o
		}
	}
	return nil
}

func optStr(ic *discordgo.InteractionCreate, name string) (string, bool) {
	if o := findOpt(ic, name, discordgo.ApplicationCommandOptionString); o != nil {
		return o.StringValue(), true
	}
	return "", false
}

func optInt(ic *discordgo.InteractionCreate, name string) (int, bool) {
	if o := findOpt(ic, name, discordgo.ApplicationCommandOptionInteger); o != nil {
		return int(o.IntValue()), true
	}
	return 0, false
}

func optBool(ic *discordgo.InteractionCreate, name string) (bool, bool) {
	if o := findOpt(ic, name, discordgo.ApplicationCommandOptionBoolean); o != nil {
		return o.BoolValue(), true
	}
	return false, false
}

// optID: id de una opción channel o user (el Value viene como string).
func optID(ic *discordgo.InteractionCreate, name string) (string, bool) {
	for _, typ := range []discordgo.ApplicationCommandOptionType{
		discordgo.ApplicationCommandOptionChannel,
		discordgo.ApplicationCommandOptionUser,
	} {
		if o := findOpt(ic, name, typ); o != nil {
			if id, ok := o.Value.(string); ok && id != "" {
				return id, true
			}
		}
	}
	return "", false
}

func subcmdName(ic *discordgo.InteractionCreate) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			return o.Name, true
		}
	}
	return "", false
}

func invokerID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}

// custom_id de componentes: "<acción>:<cola>"
const (
	actionJoin  = "queue_join"
	actionLeave = "queue_leave"
)

func componentID(action, queueID string) string { return action + ":" + queueID }

func parseComponentID(id string) (action, queueID string, ok bool) {
	action, queueID, ok = strings.Cut(id, ":")
	if !ok || action == "" || queueID == "" {
		return "", "", false
	}
	return action, queueID, true
}
