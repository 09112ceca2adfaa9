// Copyright (c) 2025, The Bitte Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package inventory lists the live machines of a cluster from the cloud
// provider: running EC2 instances tagged with the cluster name, and the
// members of autoscaling groups.
package inventory

import (
	"net/netip"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Instance tag keys.
const (
	TagCluster = "Cluster"
	TagName    = "Name"
	TagUID     = "UID"
)

// Instance is a live cloud instance.
type Instance struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	UID        string     `json:"uid"`
	PrivateIP  netip.Addr `json:"private_ip"`
	PublicIP   netip.Addr `json:"public_ip"`
	PrivateDNS string     `json:"private_dns,omitempty"`
	PublicDNS  string     `json:"public_dns,omitempty"`
}

// FromEC2 converts an EC2 instance description. Missing or unparseable
// addresses are left as the zero Addr.
func FromEC2(in ec2types.Instance) Instance {
	out := Instance{
		ID:         aws.ToString(in.InstanceId),
		PrivateIP:  parseAddr(aws.ToString(in.PrivateIpAddress)),
		PublicIP:   parseAddr(aws.ToString(in.PublicIpAddress)),
		PrivateDNS: aws.ToString(in.PrivateDnsName),
		PublicDNS:  aws.ToString(in.PublicDnsName),
	}
	for _, tag := range in.Tags {
		switch aws.ToString(tag.Key) {
		case TagName:
			out.Name = aws.ToString(tag.Value)
		case TagUID:
			out.UID = aws.ToString(tag.Value)
		}
	}
	return out
}

func parseAddr(s string) netip.Addr {
	if s == "" {
		return netip.Addr{}
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}
