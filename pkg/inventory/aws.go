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

package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// EC2API is the subset of the EC2 client used here.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// AutoscalingAPI is the subset of the Auto Scaling client used here.
type AutoscalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

// RegionClients are the service clients of one region.
type RegionClients struct {
	EC2         EC2API
	Autoscaling AutoscalingAPI
}

// ClientFactory creates the service clients of a region.
type ClientFactory func(ctx context.Context, region string) (*RegionClients, error)

// Option configures AWS.
type Option func(*AWS)

// WithClientFactory replaces the default SDK client construction.
func WithClientFactory(f ClientFactory) Option {
	return func(a *AWS) {
		a.factory = f
	}
}

// AWS is the cloud inventory backed by the AWS SDK. Region clients are
// created on first use and reused; AWS is safe for concurrent use.
type AWS struct {
	factory ClientFactory

	mu      sync.Mutex
	regions map[string]*RegionClients
}

// NewAWS creates an AWS inventory. Credentials come from the default SDK
// chain (environment, shared config, instance role).
func NewAWS(opts ...Option) *AWS {
	a := &AWS{
		factory: defaultClientFactory,
		regions: map[string]*RegionClients{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func defaultClientFactory(ctx context.Context, region string) (*RegionClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeConfiguration, "failed to load aws configuration", err,
			map[string]any{"region": region})
	}
	return &RegionClients{
		EC2:         ec2.NewFromConfig(cfg),
		Autoscaling: autoscaling.NewFromConfig(cfg),
	}, nil
}

func (a *AWS) clients(ctx context.Context, region string) (*RegionClients, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.regions[region]; ok {
		return c, nil
	}
	c, err := a.factory(ctx, region)
	if err != nil {
		return nil, err
	}
	a.regions[region] = c
	return c, nil
}

// RunningInstances lists the running instances of region tagged with the
// cluster name.
func (a *AWS) RunningInstances(ctx context.Context, region, cluster string) ([]Instance, error) {
	c, err := a.clients(ctx, region)
	if err != nil {
		return nil, err
	}

	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + TagCluster), Values: []string{cluster}},
			{Name: aws.String("instance-state-name"), Values: []string{string(ec2types.InstanceStateNameRunning)}},
		},
	}

	var out []Instance
	p := ec2.NewDescribeInstancesPaginator(c.EC2, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, sourceError(ctx, region, "failed to describe instances", err)
		}
		for _, res := range page.Reservations {
			for _, in := range res.Instances {
				out = append(out, FromEC2(in))
			}
		}
	}

	slog.Debug("listed running instances",
		slog.String("region", region),
		slog.String("cluster", cluster),
		slog.Int("count", len(out)))

	return out, nil
}

// GroupInstances returns the ids of the members of an autoscaling group.
func (a *AWS) GroupInstances(ctx context.Context, region, arn string) ([]string, error) {
	name, err := GroupName(arn)
	if err != nil {
		return nil, err
	}
	c, err := a.clients(ctx, region)
	if err != nil {
		return nil, err
	}

	resp, err := c.Autoscaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{name},
	})
	if err != nil {
		return nil, sourceError(ctx, region, fmt.Sprintf("failed to describe autoscaling group %s", name), err)
	}

	var ids []string
	for _, g := range resp.AutoScalingGroups {
		for _, in := range g.Instances {
			if id := aws.ToString(in.InstanceId); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// DescribeInstance returns one instance by id.
func (a *AWS) DescribeInstance(ctx context.Context, region, id string) (*Instance, error) {
	c, err := a.clients(ctx, region)
	if err != nil {
		return nil, err
	}

	resp, err := c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, sourceError(ctx, region, fmt.Sprintf("failed to describe instance %s", id), err)
	}
	for _, res := range resp.Reservations {
		for _, in := range res.Instances {
			inst := FromEC2(in)
			return &inst, nil
		}
	}
	return nil, errors.NewWithContext(errors.ErrCodeNotFound, "instance not found",
		map[string]any{"source": "inventory/" + region, "instance": id})
}

// GroupName extracts the group name from an autoscaling group ARN:
// arn:aws:autoscaling:<region>:<account>:autoScalingGroup:<uuid>:autoScalingGroupName/<name>.
func GroupName(arn string) (string, error) {
	const marker = "autoScalingGroupName/"
	i := strings.LastIndex(arn, marker)
	if i < 0 || i+len(marker) == len(arn) {
		return "", errors.NewWithContext(errors.ErrCodeInvalidRequest, "not an autoscaling group arn",
			map[string]any{"arn": arn})
	}
	return arn[i+len(marker):], nil
}

func sourceError(ctx context.Context, region, msg string, err error) error {
	code := errors.ErrCodeUnavailable
	if ctx.Err() != nil {
		code = errors.ErrCodeTimeout
	}
	return errors.WrapWithContext(code, msg, err, map[string]any{"source": "inventory/" + region})
}
