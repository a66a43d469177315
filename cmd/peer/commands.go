package main

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/P2PCall/internal/domain"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for the other peer",
	Long: `Create a room on the relay, publish the offer and print the room id.

Examples:
  peer create --video clip.ivf --audio voice.ogg
  peer create --store https://relay.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newPeer()
		if err != nil {
			return err
		}
		defer p.Close()

		id, err := p.ctrl.CreateRoom(cmd.Context())
		if err != nil {
			return err
		}
		return p.wait(cmd.Context(), id)
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join a room created by another peer",
	Long: `Join an existing room, answer its offer and exchange candidates.

Examples:
  peer join 3f0c1a52-9a77-4c1e-bb3f-2f8e0c1d9a10
  peer join 3f0c1a52-9a77-4c1e-bb3f-2f8e0c1d9a10 --record-dir ./rec`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPeer()
		if err != nil {
			return err
		}
		defer p.Close()

		id := domain.RoomID(args[0])
		if err := p.ctrl.JoinRoom(cmd.Context(), id); err != nil {
			return err
		}
		return p.wait(cmd.Context(), id)
	},
}
