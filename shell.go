package main

import (
	"errors"
	"strconv"

	"github.com/CodedInternet/gosbrick/onboard"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
)

var ERR_USAGE = errors.New("wrong number of arguments")

func parsePorts(args []string) (ports []hardware.MotorCommand, err error) {
	ports = make([]hardware.MotorCommand, len(args))
	for i, arg := range args {
		ports[i], err = hardware.ParseCommand(arg)
		if err != nil {
			return nil, err
		}
	}
	return
}

func parseAxis(arg string) (v float64, err error) {
	return strconv.ParseFloat(arg, 64)
}

// newShell builds the local development shell around a device.
func newShell(device onboard.SBrick, db *storm.DB) *ishell.Shell {
	shell := ishell.New()
	shell.Println("SBrick development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createoperator",
		Help: "createoperator <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			operator := &Operator{
				Email: email,
				Name:  email,
				Admin: true,
			}
			if err := operator.SetPassword([]byte(password)); err != nil {
				c.Err(err)
				return
			}
			if err := db.Save(operator); err != nil {
				c.Err(err)
				return
			}

			c.Println("Operator created")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "drive",
		Help: "drive <p0> <p1> <p2> <p3>, each -100..100, brake or fw",
		Func: func(c *ishell.Context) {
			ports, err := parsePorts(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err = device.DrivePorts(ports); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "port",
		Help: "port <index> <command>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(ERR_USAGE)
				return
			}
			index, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			cmd, err := hardware.ParseCommand(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err = device.SetPort(index, cmd); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "brake",
		Help: "brake all ports",
		Func: func(c *ishell.Context) {
			if err := device.Brake(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "mix",
		Help: "mix <x> <y>, joystick position in -1..1",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(ERR_USAGE)
				return
			}
			x, err := parseAxis(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			y, err := parseAxis(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err = device.Mix(x, y); err != nil {
				c.Err(err)
			}
		},
	})

	{
		kaCmd := &ishell.Cmd{
			Name: "ka",
			Help: "control the keep alive watchdog",
			Func: func(c *ishell.Context) {
				c.Println(device.KeepAliveStatus())
			},
		}

		kaCmd.AddCmd(&ishell.Cmd{
			Name: "start",
			Func: func(c *ishell.Context) {
				if err := device.StartKeepAlive(); err != nil {
					c.Err(err)
				}
			},
		})
		kaCmd.AddCmd(&ishell.Cmd{
			Name: "reset",
			Func: func(c *ishell.Context) { device.ResetKeepAlive() },
		})
		kaCmd.AddCmd(&ishell.Cmd{
			Name: "stop",
			Func: func(c *ishell.Context) { device.StopKeepAlive() },
		})
		kaCmd.AddCmd(&ishell.Cmd{
			Name: "kill",
			Func: func(c *ishell.Context) { device.KillKeepAlive() },
		})
		kaCmd.AddCmd(&ishell.Cmd{
			Name: "status",
			Func: func(c *ishell.Context) {
				run := device.LastRun()
				c.Printf("%s, %d retransmissions\n", run.Status, run.Retransmissions)
				if run.Err != nil {
					c.Println(run.Err)
				}
			},
		})

		shell.AddCmd(kaCmd)
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "telemetry",
		Help: "read voltage, temperature, uptime and resets",
		Func: func(c *ishell.Context) {
			t, err := device.Telemetry()
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("voltage: %.2fV\ntemperature: %.1fC\nuptime: %s\nresets: %d\n",
				t.Voltage, t.Temperature, t.Uptime, t.Resets)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "led",
		Help: "flash the status led",
		Func: func(c *ishell.Context) {
			if err := device.LEDTest(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "version",
		Help: "firmware version",
		Func: func(c *ishell.Context) {
			version, err := device.Version()
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(version)
		},
	})

	return shell
}
