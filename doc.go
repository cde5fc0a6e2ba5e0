// Package teleop provides leader/follower teleoperation for remote robot
// arms.
//
// An operator moves a lightweight leader arm (Feetech servo bus or Dynamixel
// absolute encoders); joint positions are sampled, calibrated into the
// follower's joint space, and streamed over the network at a fixed rate.
//
// # Usage
//
// Pick a hardware pairing and calibrate the leader arms:
//
//	teleop calibrate --pairing so101-piper
//
// Then start teleoperation:
//
//	teleop teleoperate
//
// Motor enable/reset commands for the remote arms run on a separate channel:
//
//	teleop motors
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/teleop: CLI with calibrate, teleoperate, motors and profiles commands
//   - cmd/followersim: loopback follower for bench runs
//   - pkg/calib: per-joint calibration model and profile files
//   - pkg/source: leader joint sources (servo bus, absolute encoder)
//   - pkg/channel: command/observation network channel
//   - pkg/motorctl: remote motor enable/reset channel
//   - pkg/teleop: fixed-rate control loop
//   - pkg/profile: hardware pairing registry
package teleop
