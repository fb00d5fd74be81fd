package discord

import "github.com/bwmarrin/discordgo"

var (
	minZero = 0.0
	minOne  = 1.0
)

func queueChannelOpt(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  desc,
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildText},
	}
}

func userOpt() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Usuario", Required: true}
}

func settingsOpts() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "capacity", Description: "Máximo en cola (0 = sin límite)", MinValue: &minZero},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "grace", Description: "Segundos para volver sin perder el lugar", MinValue: &minZero},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "autofill",
			Description: "Cómo llenar el destino",
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "apagado", Value: "off"},
				{Name: "pullnum por vacante", Value: "pull_num"},
				{Name: "hasta la capacidad del destino", Value: "capacity"},
			},
		},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "pullnum", Description: "Cuántos mover por vacante", MinValue: &minOne},
	}
}

func ruleOpts() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		queueChannelOpt("Cola"),
		userOpt(),
		{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Activar (default) o quitar"},
	}
}

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "queue",
		Description: "Colas de voz y texto",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Crear o reconfigurar una cola (admins)",
				Options:     append([]*discordgo.ApplicationCommandOption{queueChannelOpt("Canal de la cola")}, settingsOpts()...),
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Cambiar sólo lo que pases (admins)",
				Options:     append([]*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}, settingsOpts()...),
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Eliminar una cola (admins)", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pull",
				Description: "Mover/llamar a los siguientes (admins)",
				Options: []*discordgo.ApplicationCommandOption{
					queueChannelOpt("Cola"),
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "count", Description: "Cuántos", MinValue: &minOne},
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "shuffle", Description: "Mezclar la cola (admins)", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "kick", Description: "Sacar a alguien de la cola (admins)", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola"), userOpt()}},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "deny", Description: "Bloquear a alguien en una cola (admins)", Options: ruleOpts()},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "priority", Description: "Dar prioridad en una cola (admins)", Options: ruleOpts()},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "display", Description: "Publicar el listado aquí (admins)", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "mode",
				Description: "Editar el listado o repostearlo (admins)",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "edit o replace",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "editar", Value: "edit"},
						{Name: "reemplazar", Value: "replace"},
					},
				}},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Ver una cola", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Unirte a una cola de texto",
				Options: []*discordgo.ApplicationCommandOption{
					queueChannelOpt("Cola"),
					{Type: discordgo.ApplicationCommandOptionString, Name: "note", Description: "Nota visible en el listado", MaxLength: 80},
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "leave", Description: "Salir de una cola de texto", Options: []*discordgo.ApplicationCommandOption{queueChannelOpt("Cola")}},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "mine", Description: "Ver en qué colas estás"},
		},
	},
}
