// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// AlertConfig configures best-effort email notification on a fatal
// list-mode mismatch or boot abort. Send failures are logged and
// swallowed -- alerting never masks or alters the underlying typed
// error the caller receives.
type AlertConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

func (c *Crate) sendAlert(subject, body string) {
	if c.alert == nil {
		return
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", c.alert.From)
	msg.SetHeader("To", c.alert.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(c.alert.SMTPHost, c.alert.SMTPPort, c.alert.Username, c.alert.Password)
	if err := d.DialAndSend(msg); err != nil {
		c.msg.Printf("could not send alert mail: %+v", err)
	}
}

// notifyBootFailure alerts on a module boot abort.
func (c *Crate) notifyBootFailure(number int, err error) {
	c.sendAlert(
		fmt.Sprintf("pixie crate: module %d boot failed", number),
		fmt.Sprintf("module %d failed to boot: %+v", number, err),
	)
}

// notifyRunMismatch alerts on a list-mode worker's fatal final-drain
// mismatch invariant.
func (c *Crate) notifyRunMismatch(number int, err error) {
	c.sendAlert(
		fmt.Sprintf("pixie crate: module %d run statistics mismatch", number),
		fmt.Sprintf("module %d ended with a run statistics mismatch: %+v", number, err),
	)
}
